package generator

import (
	"fmt"

	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/ur"
)

// URGenerator emits native batches as airgap-message URs.
type URGenerator struct {
	frames fountainFrames
}

func NewURGenerator() *URGenerator {
	return &URGenerator{}
}

func (g *URGenerator) Name() string { return "ur" }

func (g *URGenerator) CanHandle(batch proto.Batch) bool {
	return len(batch) > 0
}

func (g *URGenerator) Create(batch proto.Batch, maxMulti, maxSingle int) error {
	g.frames.reset()
	if err := checkSizes(maxMulti, maxSingle); err != nil {
		return err
	}
	data, err := proto.EncodeBatch(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	u, err := ur.New(proto.URType, data)
	if err != nil {
		return err
	}
	return g.frames.create(u, maxMulti, maxSingle)
}

func (g *URGenerator) NextPart() string { return g.frames.nextPart() }

func (g *URGenerator) SingleForm(prefix string) (string, error) {
	return g.frames.singleForm(prefix)
}

func (g *URGenerator) PartCount() int { return g.frames.partCount() }
