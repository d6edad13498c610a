// Package legacy implements the version 2 chunked message format: an RLP list
// of messages, snappy-compressed and split into base58check pages.
package legacy

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
	"github.com/mbocsi/airlink/proto"
	"github.com/mr-tron/base58"
)

// Version is the page format version.
const Version = 2

// Fixed per-page cost in raw bytes: RLP headers, page counters, digest and
// the base58check checksum.
const pageOverhead = 20

var (
	ErrInvalidChunk = errors.New("invalid legacy chunk")
	ErrCorrupt      = errors.New("legacy payload corrupt")
)

// IncompleteError reports that only some pages of a payload were supplied.
type IncompleteError struct {
	Available int
	Total     int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("legacy payload incomplete: %d of %d pages", e.Available, e.Total)
}

type page struct {
	Version uint
	Index   uint
	Total   uint
	Digest  []byte
	Data    []byte
}

type message struct {
	Kind     uint8
	Protocol string
	ID       uint32
	Payload  []byte
}

// PageSize converts a frame length in characters into the raw data bytes a
// page may carry. Base58 grows input by about 137%.
func PageSize(frameLen int) int {
	size := frameLen*100/137 - pageOverhead
	if size < 10 {
		size = 10
	}
	return size
}

// Serialize encodes batch into pages whose rendered length stays close to
// maxChunkLen characters.
func Serialize(batch proto.Batch, maxChunkLen int) ([]string, error) {
	if len(batch) == 0 {
		return nil, errors.New("empty batch")
	}
	msgs := make([]message, 0, len(batch))
	for i, m := range batch {
		if m.Payload != nil && m.Payload.Kind() != m.Kind {
			return nil, fmt.Errorf("message %d has kind %s but %s payload", i, m.Kind, m.Payload.Kind())
		}
		body, err := proto.MarshalPayload(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, message{Kind: uint8(m.Kind), Protocol: m.ProtocolID, ID: m.ID, Payload: body})
	}

	raw, err := rlp.EncodeToBytes(msgs)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	compressed := snappy.Encode(nil, raw)
	sum := sha256.Sum256(compressed)

	size := PageSize(maxChunkLen)
	total := (len(compressed) + size - 1) / size
	chunks := make([]string, 0, total)
	for i := 0; i < total; i++ {
		end := (i + 1) * size
		if end > len(compressed) {
			end = len(compressed)
		}
		p := page{Version: Version, Index: uint(i), Total: uint(total), Digest: sum[:4], Data: compressed[i*size : end]}
		enc, err := rlp.EncodeToBytes(p)
		if err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i, err)
		}
		chunks = append(chunks, encodeCheck(enc))
	}
	return chunks, nil
}

// IsChunk reports whether s parses as a single legacy page.
func IsChunk(s string) bool {
	_, err := parsePage(s)
	return err == nil
}

func parsePage(s string) (page, error) {
	raw, err := decodeCheck(strings.TrimSpace(s))
	if err != nil {
		return page{}, err
	}
	var p page
	if err := rlp.DecodeBytes(raw, &p); err != nil {
		return page{}, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
	}
	if p.Version != Version || p.Total == 0 || p.Index >= p.Total || len(p.Digest) != 4 || len(p.Data) == 0 {
		return page{}, ErrInvalidChunk
	}
	return p, nil
}

// Deserialize rebuilds a batch from any collection of chunks. Chunks from more
// than one payload may be present; the payload of the last chunk wins. A
// missing page yields an *IncompleteError.
func Deserialize(chunks []string) (proto.Batch, error) {
	if len(chunks) == 0 {
		return nil, ErrInvalidChunk
	}
	pages := make([]page, 0, len(chunks))
	for _, c := range chunks {
		p, err := parsePage(c)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}

	current := pages[len(pages)-1]
	byIndex := make(map[uint]page, current.Total)
	for _, p := range pages {
		if p.Total == current.Total && bytes.Equal(p.Digest, current.Digest) {
			byIndex[p.Index] = p
		}
	}
	if uint(len(byIndex)) < current.Total {
		return nil, &IncompleteError{Available: len(byIndex), Total: int(current.Total)}
	}

	indexes := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indexes = append(indexes, int(i))
	}
	sort.Ints(indexes)
	var compressed []byte
	for _, i := range indexes {
		compressed = append(compressed, byIndex[uint(i)].Data...)
	}

	sum := sha256.Sum256(compressed)
	if !bytes.Equal(sum[:4], current.Digest) {
		return nil, ErrCorrupt
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var msgs []message
	if err := rlp.DecodeBytes(raw, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrCorrupt)
	}

	batch := make(proto.Batch, 0, len(msgs))
	for _, m := range msgs {
		payload, err := proto.UnmarshalPayload(proto.Kind(m.Kind), m.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		batch = append(batch, proto.Message{
			ID:         m.ID,
			ProtocolID: m.Protocol,
			Kind:       proto.Kind(m.Kind),
			Payload:    payload,
		})
	}
	return batch, nil
}

func checksum(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func encodeCheck(data []byte) string {
	buf := make([]byte, 0, len(data)+4)
	buf = append(buf, data...)
	buf = append(buf, checksum(data)...)
	return base58.Encode(buf)
}

func decodeCheck(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrInvalidChunk
	}
	raw, err := base58.Decode(s)
	if err != nil || len(raw) < 5 {
		return nil, ErrInvalidChunk
	}
	data, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(checksum(data), sum) {
		return nil, ErrInvalidChunk
	}
	return data, nil
}
