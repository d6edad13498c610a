package handler

import (
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/ur"
)

// URHandler decodes native batches carried as airgap-message URs.
type URHandler struct {
	session *fountainSession
}

func NewURHandler() *URHandler {
	return &URHandler{session: newFountainSession()}
}

func (h *URHandler) Name() string { return "ur" }

func (h *URHandler) CanHandle(input string) bool {
	typ, ok := ur.TypeOf(Unwrap(input))
	return ok && typ == proto.URType
}

func (h *URHandler) Receive(input string) (proto.Outcome, error) {
	return h.session.receive(Unwrap(input))
}

func (h *URHandler) Progress() float64 {
	return h.session.progress
}

func (h *URHandler) Result() (proto.Batch, error) {
	u, err := h.session.result()
	if err != nil {
		return nil, err
	}
	return proto.DecodeBatch(u.CBOR)
}

func (h *URHandler) SingleForm() (string, bool) {
	return h.session.singleForm()
}

func (h *URHandler) Reset() {
	h.session.reset()
}
