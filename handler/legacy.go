package handler

import (
	"errors"
	"strings"

	"github.com/mbocsi/airlink/legacy"
	"github.com/mbocsi/airlink/proto"
)

// LegacyHandler decodes version 2 chunk lists. Every call recombines the
// union of chunks seen so far, since pages may arrive in any order.
type LegacyHandler struct {
	seen     map[string]struct{}
	chunks   []string
	progress float64
	batch    proto.Batch
}

func NewLegacyHandler() *LegacyHandler {
	h := &LegacyHandler{}
	h.Reset()
	return h
}

func (h *LegacyHandler) Name() string { return "legacy" }

func splitChunks(input string) []string {
	var out []string
	for _, c := range strings.Split(Unwrap(input), ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (h *LegacyHandler) CanHandle(input string) bool {
	chunks := splitChunks(input)
	if len(chunks) == 0 {
		return false
	}
	for _, c := range chunks {
		if !legacy.IsChunk(c) {
			return false
		}
	}
	return true
}

func (h *LegacyHandler) Receive(input string) (proto.Outcome, error) {
	for _, c := range splitChunks(input) {
		if _, ok := h.seen[c]; ok {
			continue
		}
		h.seen[c] = struct{}{}
		h.chunks = append(h.chunks, c)
	}
	if len(h.chunks) == 0 {
		return proto.Unsupported(), nil
	}

	batch, err := legacy.Deserialize(h.chunks)
	if err == nil {
		h.batch = batch
		h.progress = 1
		return proto.Success(), nil
	}

	var incomplete *legacy.IncompleteError
	if errors.As(err, &incomplete) && incomplete.Total > 0 {
		if p := float64(incomplete.Available) / float64(incomplete.Total); p > h.progress {
			h.progress = p
		}
	}
	return proto.Partial(h.progress), nil
}

func (h *LegacyHandler) Progress() float64 {
	return h.progress
}

func (h *LegacyHandler) Result() (proto.Batch, error) {
	if h.batch == nil {
		return nil, ErrNoResult
	}
	return h.batch, nil
}

func (h *LegacyHandler) SingleForm() (string, bool) {
	if len(h.chunks) == 0 {
		return "", false
	}
	return strings.Join(h.chunks, ","), true
}

func (h *LegacyHandler) Reset() {
	h.seen = make(map[string]struct{})
	h.chunks = nil
	h.progress = 0
	h.batch = nil
}
