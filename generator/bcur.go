package generator

import (
	"github.com/mbocsi/airlink/bcur"
	"github.com/mbocsi/airlink/proto"
)

// BCURGenerator emits one message in its third-party UR form.
type BCURGenerator struct {
	registry *proto.Registry
	frames   fountainFrames
	accept   func(proto.Message) bool
	name     string
}

func NewBCURGenerator(reg *proto.Registry) *BCURGenerator {
	return &BCURGenerator{registry: reg, name: "bcur"}
}

func (g *BCURGenerator) Name() string { return g.name }

func (g *BCURGenerator) CanHandle(batch proto.Batch) bool {
	if len(batch) != 1 || !bcur.Supports(batch[0], g.registry) {
		return false
	}
	return g.accept == nil || g.accept(batch[0])
}

func (g *BCURGenerator) Create(batch proto.Batch, maxMulti, maxSingle int) error {
	g.frames.reset()
	if err := checkSizes(maxMulti, maxSingle); err != nil {
		return err
	}
	if !g.CanHandle(batch) {
		return ErrUnsupportedBatch
	}
	u, err := bcur.Encode(batch[0], g.registry)
	if err != nil {
		return err
	}
	return g.frames.create(u, maxMulti, maxSingle)
}

func (g *BCURGenerator) NextPart() string { return g.frames.nextPart() }

func (g *BCURGenerator) SingleForm(prefix string) (string, error) {
	return g.frames.singleForm(prefix)
}

func (g *BCURGenerator) PartCount() int { return g.frames.partCount() }

// NewMetaMaskGenerator restricts the UR exporter to what MetaMask's
// air-gapped account sync and signing accept: Ethereum crypto-hdkey
// accounts and eth-signature responses.
func NewMetaMaskGenerator(reg *proto.Registry) *BCURGenerator {
	return &BCURGenerator{
		registry: reg,
		name:     "metamask",
		accept: func(m proto.Message) bool {
			if !reg.Has(m.ProtocolID, proto.CapEthereum) {
				return false
			}
			switch m.Payload.(type) {
			case proto.AccountShareResponse, proto.TransactionSignResponse:
				return true
			}
			return false
		},
	}
}
