package proto

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NativeVersion is the version tag of the native message batch encoding.
const NativeVersion = 3

// URType is the UR type that carries a native batch.
const URType = "airgap-message"

var (
	ErrUnknownKind  = errors.New("unknown message kind")
	ErrInvalidBatch = errors.New("invalid message batch")
)

type wireMessage struct {
	_        struct{} `cbor:",toarray"`
	Kind     uint8
	Protocol string
	ID       uint32
	Payload  cbor.RawMessage
}

type wireBatch struct {
	_        struct{} `cbor:",toarray"`
	Version  uint
	Messages []wireMessage
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{MaxArrayElements: 1 << 16}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// MarshalPayload encodes a payload body. RawPayload bodies are passed through.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil payload")
	}
	if raw, ok := p.(RawPayload); ok {
		return raw.Data, nil
	}
	return encMode.Marshal(p)
}

// UnmarshalPayload decodes a payload body for kind. Unknown kinds yield a
// RawPayload so callers can still see what arrived.
func UnmarshalPayload(kind Kind, data []byte) (Payload, error) {
	if !kind.Valid() {
		return RawPayload{Type: kind, Data: append([]byte(nil), data...)}, nil
	}
	ptr := NewPayload(kind)
	if err := decMode.Unmarshal(data, ptr); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return derefPayload(ptr), nil
}

// EncodeBatch serializes messages into the native CBOR batch form.
func EncodeBatch(b Batch) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBatch)
	}
	wire := wireBatch{Version: NativeVersion, Messages: make([]wireMessage, 0, len(b))}
	for i, m := range b {
		if m.Payload != nil && m.Payload.Kind() != m.Kind {
			return nil, fmt.Errorf("%w: message %d has kind %s but %s payload", ErrInvalidBatch, i, m.Kind, m.Payload.Kind())
		}
		payload, err := MarshalPayload(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		wire.Messages = append(wire.Messages, wireMessage{
			Kind:     uint8(m.Kind),
			Protocol: m.ProtocolID,
			ID:       m.ID,
			Payload:  payload,
		})
	}
	return encMode.Marshal(wire)
}

// DecodeBatch parses the native CBOR batch form.
func DecodeBatch(data []byte) (Batch, error) {
	var wire wireBatch
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if wire.Version != NativeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidBatch, wire.Version)
	}
	if len(wire.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrInvalidBatch)
	}

	batch := make(Batch, 0, len(wire.Messages))
	for _, wm := range wire.Messages {
		payload, err := UnmarshalPayload(Kind(wm.Kind), wm.Payload)
		if err != nil {
			return nil, err
		}
		batch = append(batch, Message{
			ID:         wm.ID,
			ProtocolID: wm.Protocol,
			Kind:       Kind(wm.Kind),
			Payload:    payload,
		})
	}
	return batch, nil
}
