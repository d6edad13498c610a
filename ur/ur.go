// Package ur implements Uniform Resources: typed CBOR payloads rendered as
// QR-friendly strings, split into fountain-coded frames when they do not fit
// one code.
package ur

import (
	"errors"
	"fmt"
	"strings"
)

const scheme = "ur:"

var ErrInvalidUR = errors.New("invalid ur string")

// UR is a typed CBOR payload.
type UR struct {
	Type string
	CBOR []byte
}

func validType(t string) bool {
	if t == "" {
		return false
	}
	for _, c := range t {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
			return false
		}
	}
	return true
}

func New(typ string, payload []byte) (UR, error) {
	typ = strings.ToLower(typ)
	if !validType(typ) {
		return UR{}, fmt.Errorf("%w: bad type %q", ErrInvalidUR, typ)
	}
	if len(payload) == 0 {
		return UR{}, fmt.Errorf("%w: empty payload", ErrInvalidUR)
	}
	return UR{Type: typ, CBOR: payload}, nil
}

// EncodeSingle renders u as one lower-case frame regardless of size.
func EncodeSingle(u UR) string {
	return scheme + u.Type + "/" + encodeMinimal(u.CBOR)
}

// IsUR reports whether s looks like a UR frame (case-insensitive).
func IsUR(s string) bool {
	return len(s) > len(scheme) && strings.EqualFold(s[:len(scheme)], scheme)
}

// TypeOf returns the lower-cased type of a UR frame.
func TypeOf(s string) (string, bool) {
	typ, _, _, err := parse(s)
	if err != nil {
		return "", false
	}
	return typ, true
}

func parse(s string) (typ, seq, body string, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, scheme) {
		return "", "", "", ErrInvalidUR
	}
	comps := strings.Split(s[len(scheme):], "/")
	switch len(comps) {
	case 2:
		typ, body = comps[0], comps[1]
	case 3:
		typ, seq, body = comps[0], comps[1], comps[2]
	default:
		return "", "", "", ErrInvalidUR
	}
	if !validType(typ) || body == "" {
		return "", "", "", ErrInvalidUR
	}
	return typ, seq, body, nil
}

// Decode parses a single-frame UR.
func Decode(s string) (UR, error) {
	typ, seq, body, err := parse(s)
	if err != nil {
		return UR{}, err
	}
	if seq != "" {
		return UR{}, fmt.Errorf("%w: multi-part frame", ErrInvalidUR)
	}
	data, err := decodeMinimal(body)
	if err != nil {
		return UR{}, err
	}
	return UR{Type: typ, CBOR: data}, nil
}

// Encoder emits the frames for one UR. Single-fragment payloads always yield
// the same single-part frame; larger ones yield an endless fountain stream.
type Encoder struct {
	ur       UR
	fountain *FountainEncoder
}

func NewEncoder(u UR, maxFragmentLen, minFragmentLen int) (*Encoder, error) {
	if minFragmentLen > maxFragmentLen {
		minFragmentLen = maxFragmentLen
	}
	fe, err := NewFountainEncoder(u.CBOR, maxFragmentLen, minFragmentLen, 0)
	if err != nil {
		return nil, err
	}
	return &Encoder{ur: u, fountain: fe}, nil
}

func (e *Encoder) SeqLen() int {
	return e.fountain.SeqLen()
}

func (e *Encoder) IsSinglePart() bool {
	return e.fountain.IsSinglePart()
}

func (e *Encoder) NextPart() string {
	if e.IsSinglePart() {
		return EncodeSingle(e.ur)
	}
	part := e.fountain.NextPart()
	body, err := part.marshal()
	if err != nil {
		// Part holds only integers and a byte slice.
		panic(err)
	}
	return fmt.Sprintf("%s%s/%d-%d/%s", scheme, e.ur.Type, part.SeqNum, part.SeqLen, encodeMinimal(body))
}

// Decoder collects frames of one UR until it is complete.
type Decoder struct {
	typ      string
	fountain *FountainDecoder
	result   *UR
	err      error
}

func NewDecoder() *Decoder {
	return &Decoder{fountain: NewFountainDecoder()}
}

// Receive feeds one frame. ErrDifferentMessage means the frame is valid but
// belongs to another UR than the one in progress.
func (d *Decoder) Receive(s string) error {
	typ, seq, body, err := parse(s)
	if err != nil {
		return err
	}
	if d.typ != "" && typ != d.typ {
		return ErrDifferentMessage
	}
	if d.err != nil {
		return d.err
	}

	data, err := decodeMinimal(body)
	if err != nil {
		return err
	}

	if seq == "" {
		if d.fountain.Started() {
			return ErrDifferentMessage
		}
		if d.result != nil && string(d.result.CBOR) != string(data) {
			return ErrDifferentMessage
		}
		d.typ = typ
		d.result = &UR{Type: typ, CBOR: data}
		return nil
	}

	var n, total int
	if _, err := fmt.Sscanf(seq, "%d-%d", &n, &total); err != nil || n < 1 || total < 1 {
		return fmt.Errorf("%w: bad sequence %q", ErrInvalidUR, seq)
	}
	if d.result != nil && !d.fountain.Started() {
		return ErrDifferentMessage
	}
	part, err := unmarshalPart(data)
	if err != nil {
		return err
	}
	if int(part.SeqNum) != n || part.SeqLen != total {
		return fmt.Errorf("%w: sequence %q does not match part", ErrInvalidPart, seq)
	}
	if err := d.fountain.Receive(part); err != nil {
		if errors.Is(err, ErrInvalidChecksum) {
			d.err = err
		}
		return err
	}
	d.typ = typ

	if d.fountain.IsComplete() {
		msg, err := d.fountain.Result()
		if err != nil {
			d.err = err
			return err
		}
		d.result = &UR{Type: typ, CBOR: msg}
	}
	return nil
}

func (d *Decoder) IsComplete() bool {
	return d.result != nil
}

func (d *Decoder) Result() (UR, error) {
	if d.err != nil {
		return UR{}, d.err
	}
	if d.result == nil {
		return UR{}, errors.New("ur incomplete")
	}
	return *d.result, nil
}

func (d *Decoder) Progress() float64 {
	if d.result != nil {
		return 1
	}
	return d.fountain.Progress()
}

// Started reports whether the decoder has accepted any frame.
func (d *Decoder) Started() bool {
	return d.typ != ""
}

func (d *Decoder) Type() string {
	return d.typ
}
