package generator

import (
	"github.com/mbocsi/airlink/legacy"
	"github.com/mbocsi/airlink/proto"
)

// Chunk length used for the one-piece legacy single form.
const legacySingleLen = 1 << 20

type LegacyGenerator struct {
	batch  proto.Batch
	chunks []string
	next   int
}

func NewLegacyGenerator() *LegacyGenerator {
	return &LegacyGenerator{}
}

func (g *LegacyGenerator) Name() string { return "legacy" }

func (g *LegacyGenerator) CanHandle(batch proto.Batch) bool {
	return len(batch) > 0
}

func (g *LegacyGenerator) Create(batch proto.Batch, maxMulti, maxSingle int) error {
	g.batch, g.chunks, g.next = nil, nil, 0
	if err := checkSizes(maxMulti, maxSingle); err != nil {
		return err
	}
	chunks, err := legacy.Serialize(batch, maxSingle)
	if err != nil {
		return err
	}
	if len(chunks) > 1 {
		if chunks, err = legacy.Serialize(batch, maxMulti); err != nil {
			return err
		}
	}
	g.batch = batch
	g.chunks = chunks
	return nil
}

func (g *LegacyGenerator) NextPart() string {
	if len(g.chunks) == 0 {
		return ""
	}
	part := g.chunks[g.next%len(g.chunks)]
	g.next = (g.next + 1) % len(g.chunks)
	return part
}

func (g *LegacyGenerator) SingleForm(prefix string) (string, error) {
	if g.batch == nil {
		return "", ErrNotCreated
	}
	chunks, err := legacy.Serialize(g.batch, legacySingleLen)
	if err != nil {
		return "", err
	}
	return link(prefix, "d", chunks[0]), nil
}

func (g *LegacyGenerator) PartCount() int { return len(g.chunks) }
