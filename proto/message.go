package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the semantic category of a signing message.
type Kind uint8

const (
	KindAccountShareRequest     Kind = 2
	KindAccountShareResponse    Kind = 3
	KindTransactionSignRequest  Kind = 4
	KindTransactionSignResponse Kind = 5
	KindMessageSignRequest      Kind = 6
	KindMessageSignResponse     Kind = 7
)

var kindNames = map[Kind]string{
	KindAccountShareRequest:     "account-share-request",
	KindAccountShareResponse:    "account-share-response",
	KindTransactionSignRequest:  "transaction-sign-request",
	KindTransactionSignResponse: "transaction-sign-response",
	KindMessageSignRequest:      "message-sign-request",
	KindMessageSignResponse:     "message-sign-response",
}

// Kinds lists every recognized kind in wire order.
var Kinds = []Kind{
	KindAccountShareRequest,
	KindAccountShareResponse,
	KindTransactionSignRequest,
	KindTransactionSignResponse,
	KindMessageSignRequest,
	KindMessageSignResponse,
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind accepts either the dashed name or the numeric wire value.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	var n uint8
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		return Kind(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Message is one signing-protocol message. Treat it as immutable once built.
type Message struct {
	ID         uint32  `json:"id"`
	ProtocolID string  `json:"protocol"`
	Kind       Kind    `json:"type"`
	Payload    Payload `json:"payload"`
}

// Batch is an ordered list of messages decoded or encoded together.
type Batch []Message

// Kinds returns the distinct kinds in first-seen order.
func (b Batch) Kinds() []Kind {
	seen := make(map[Kind]struct{}, len(b))
	kinds := make([]Kind, 0, len(b))
	for _, m := range b {
		if _, ok := seen[m.Kind]; ok {
			continue
		}
		seen[m.Kind] = struct{}{}
		kinds = append(kinds, m.Kind)
	}
	return kinds
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         uint32          `json:"id"`
		ProtocolID string          `json:"protocol"`
		Kind       Kind            `json:"type"`
		Payload    json.RawMessage `json:"payload"` // decoded once the kind is known
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload := NewPayload(raw.Kind)
	if len(raw.Payload) > 0 && string(raw.Payload) != "null" {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return fmt.Errorf("invalid %s payload: %w", raw.Kind, err)
		}
	}

	m.ID = raw.ID
	m.ProtocolID = raw.ProtocolID
	m.Kind = raw.Kind
	m.Payload = derefPayload(payload)
	return nil
}

// TransportKind identifies the medium a frame arrived through.
type TransportKind int

const (
	TransportQRScanner TransportKind = iota
	TransportDeepLink
	TransportPaste
)

func (t TransportKind) String() string {
	switch t {
	case TransportQRScanner:
		return "qr_scanner"
	case TransportDeepLink:
		return "deeplink"
	case TransportPaste:
		return "paste"
	default:
		return "unknown"
	}
}

func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "qr", "qr_scanner", "qrscanner":
		return TransportQRScanner, nil
	case "deeplink", "deep_link", "link":
		return TransportDeepLink, nil
	case "paste", "clipboard":
		return TransportPaste, nil
	}
	return 0, fmt.Errorf("unknown transport kind %q", s)
}

// SessionContext is carried through an exchange without interpretation.
type SessionContext struct {
	SessionID string        `json:"session_id,omitempty"`
	Transport TransportKind `json:"transport"`
	Data      any           `json:"data,omitempty"`
}

// Envelope is what a session hands to routing and fallback paths.
// RawSingleForm is the best single-string form of whatever was received,
// kept so the user can relay or copy data that could not be decoded.
type Envelope struct {
	Batch         Batch          `json:"messages,omitempty"`
	RawSingleForm string         `json:"raw,omitempty"`
	Context       SessionContext `json:"context"`
}
