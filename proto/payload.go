package proto

// Payload is the kind-specific body of a Message.
type Payload interface {
	Kind() Kind
}

// Payload structs encode as CBOR arrays so single-frame codes stay small.

type AccountShareRequest struct {
	_              struct{} `cbor:",toarray"`
	DerivationPath string   `json:"derivationPath"`
}

type AccountShareResponse struct {
	_                   struct{} `cbor:",toarray"`
	PublicKey           string   `json:"publicKey"`
	DerivationPath      string   `json:"derivationPath"`
	IsExtendedPublicKey bool     `json:"isExtendedPublicKey"`
	MasterFingerprint   string   `json:"masterFingerprint"`
	IsActive            bool     `json:"isActive"`
	GroupID             string   `json:"groupId"`
	GroupLabel          string   `json:"groupLabel"`
}

type TransactionSignRequest struct {
	_           struct{} `cbor:",toarray"`
	Transaction []byte   `json:"transaction"`
	PublicKey   string   `json:"publicKey"`
	CallbackURL string   `json:"callbackURL"`
}

type TransactionSignResponse struct {
	_                 struct{} `cbor:",toarray"`
	Transaction       []byte   `json:"transaction"`
	AccountIdentifier string   `json:"accountIdentifier"`
}

type MessageSignRequest struct {
	_           struct{} `cbor:",toarray"`
	Message     string   `json:"message"`
	PublicKey   string   `json:"publicKey"`
	CallbackURL string   `json:"callbackURL"`
}

type MessageSignResponse struct {
	_         struct{} `cbor:",toarray"`
	Message   string   `json:"message"`
	PublicKey string   `json:"publicKey"`
	Signature string   `json:"signature"`
}

// RawPayload holds the undecoded body of a message whose kind is not recognized.
type RawPayload struct {
	Type Kind   `json:"-"`
	Data []byte `json:"data"`
}

func (AccountShareRequest) Kind() Kind     { return KindAccountShareRequest }
func (AccountShareResponse) Kind() Kind    { return KindAccountShareResponse }
func (TransactionSignRequest) Kind() Kind  { return KindTransactionSignRequest }
func (TransactionSignResponse) Kind() Kind { return KindTransactionSignResponse }
func (MessageSignRequest) Kind() Kind      { return KindMessageSignRequest }
func (MessageSignResponse) Kind() Kind     { return KindMessageSignResponse }
func (p RawPayload) Kind() Kind            { return p.Type }

// NewPayload returns a pointer to an empty payload for kind, ready to be
// decoded into.
func NewPayload(kind Kind) any {
	switch kind {
	case KindAccountShareRequest:
		return &AccountShareRequest{}
	case KindAccountShareResponse:
		return &AccountShareResponse{}
	case KindTransactionSignRequest:
		return &TransactionSignRequest{}
	case KindTransactionSignResponse:
		return &TransactionSignResponse{}
	case KindMessageSignRequest:
		return &MessageSignRequest{}
	case KindMessageSignResponse:
		return &MessageSignResponse{}
	default:
		return &RawPayload{Type: kind}
	}
}

func derefPayload(p any) Payload {
	switch v := p.(type) {
	case *AccountShareRequest:
		return *v
	case *AccountShareResponse:
		return *v
	case *TransactionSignRequest:
		return *v
	case *TransactionSignResponse:
		return *v
	case *MessageSignRequest:
		return *v
	case *MessageSignResponse:
		return *v
	case *RawPayload:
		return *v
	}
	return nil
}
