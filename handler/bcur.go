package handler

import (
	"github.com/mbocsi/airlink/bcur"
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/ur"
)

// BCURHandler decodes third-party URs (crypto-psbt, eth-sign-request,
// eth-signature, crypto-hdkey). Other UR types still assemble, so their
// single form is available for relay even though Result fails.
type BCURHandler struct {
	registry *proto.Registry
	session  *fountainSession
}

func NewBCURHandler(reg *proto.Registry) *BCURHandler {
	return &BCURHandler{registry: reg, session: newFountainSession()}
}

func (h *BCURHandler) Name() string { return "bcur" }

func (h *BCURHandler) CanHandle(input string) bool {
	typ, ok := ur.TypeOf(Unwrap(input))
	return ok && typ != proto.URType
}

func (h *BCURHandler) Receive(input string) (proto.Outcome, error) {
	return h.session.receive(Unwrap(input))
}

func (h *BCURHandler) Progress() float64 {
	return h.session.progress
}

func (h *BCURHandler) Result() (proto.Batch, error) {
	u, err := h.session.result()
	if err != nil {
		return nil, err
	}
	return bcur.Decode(u, h.registry)
}

func (h *BCURHandler) SingleForm() (string, bool) {
	return h.session.singleForm()
}

func (h *BCURHandler) Reset() {
	h.session.reset()
}
