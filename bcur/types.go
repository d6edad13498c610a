// Package bcur maps third-party UR payloads (crypto-psbt, eth-sign-request,
// eth-signature, crypto-hdkey) onto exchange messages and back.
package bcur

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/mbocsi/airlink/proto"
)

const (
	TypeBytes          = "bytes"
	TypePSBT           = "crypto-psbt"
	TypeHDKey          = "crypto-hdkey"
	TypeEthSignRequest = "eth-sign-request"
	TypeEthSignature   = "eth-signature"
)

// Sign data types of an eth-sign-request.
const (
	DataTypeTransaction      = 1
	DataTypeTypedData        = 2
	DataTypePersonalMessage  = 3
	DataTypeTypedTransaction = 4
)

const (
	tagUUID     = 37
	tagKeypath  = 304
	tagCoinInfo = 305
)

var ErrUnsupported = errors.New("unsupported ur payload")

// RequestID is a UUID carried under CBOR tag 37.
type RequestID [16]byte

// Keypath is a crypto-keypath: alternating index and hardened flag.
type Keypath struct {
	Components        []any  `cbor:"1,keyasint"`
	SourceFingerprint uint32 `cbor:"2,keyasint,omitempty"`
	Depth             uint8  `cbor:"3,keyasint,omitempty"`
}

// NewKeypath builds a keypath from BIP32 components.
func NewKeypath(path []uint32, fingerprint uint32) *Keypath {
	comps := make([]any, 0, len(path)*2)
	for _, c := range path {
		comps = append(comps, uint64(c&^proto.HardenedOffset), c >= proto.HardenedOffset)
	}
	return &Keypath{Components: comps, SourceFingerprint: fingerprint, Depth: uint8(len(path))}
}

// Path returns the BIP32 components. Wildcards and ranges are rejected.
func (k *Keypath) Path() ([]uint32, error) {
	if len(k.Components)%2 != 0 {
		return nil, fmt.Errorf("%w: odd keypath length", ErrUnsupported)
	}
	out := make([]uint32, 0, len(k.Components)/2)
	for i := 0; i < len(k.Components); i += 2 {
		index, ok := k.Components[i].(uint64)
		if !ok || index >= uint64(proto.HardenedOffset) {
			return nil, fmt.Errorf("%w: keypath component %v", ErrUnsupported, k.Components[i])
		}
		hardened, ok := k.Components[i+1].(bool)
		if !ok {
			return nil, fmt.Errorf("%w: keypath flag %v", ErrUnsupported, k.Components[i+1])
		}
		c := uint32(index)
		if hardened {
			c += proto.HardenedOffset
		}
		out = append(out, c)
	}
	return out, nil
}

type CoinInfo struct {
	Type    uint32 `cbor:"1,keyasint,omitempty"`
	Network int    `cbor:"2,keyasint,omitempty"`
}

type HDKey struct {
	IsMaster          bool      `cbor:"1,keyasint,omitempty"`
	IsPrivate         bool      `cbor:"2,keyasint,omitempty"`
	KeyData           []byte    `cbor:"3,keyasint"`
	ChainCode         []byte    `cbor:"4,keyasint,omitempty"`
	UseInfo           *CoinInfo `cbor:"5,keyasint,omitempty"`
	Origin            *Keypath  `cbor:"6,keyasint,omitempty"`
	Children          *Keypath  `cbor:"7,keyasint,omitempty"`
	ParentFingerprint uint32    `cbor:"8,keyasint,omitempty"`
	Name              string    `cbor:"9,keyasint,omitempty"`
	Note              string    `cbor:"10,keyasint,omitempty"`
}

type EthSignRequest struct {
	RequestID      *RequestID `cbor:"1,keyasint,omitempty"`
	SignData       []byte     `cbor:"2,keyasint"`
	DataType       int        `cbor:"3,keyasint"`
	ChainID        int64      `cbor:"4,keyasint,omitempty"`
	DerivationPath *Keypath   `cbor:"5,keyasint"`
	Address        []byte     `cbor:"6,keyasint,omitempty"`
	Origin         string     `cbor:"7,keyasint,omitempty"`
}

type EthSignature struct {
	RequestID *RequestID `cbor:"1,keyasint,omitempty"`
	Signature []byte     `cbor:"2,keyasint"`
	Origin    string     `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	tags := cbor.NewTagSet()
	opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagOptional}
	for num, typ := range map[uint64]reflect.Type{
		tagUUID:     reflect.TypeOf(RequestID{}),
		tagKeypath:  reflect.TypeOf(Keypath{}),
		tagCoinInfo: reflect.TypeOf(CoinInfo{}),
	} {
		if err := tags.Add(opts, typ, num); err != nil {
			panic(err)
		}
	}

	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncModeWithTags(tags); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecModeWithTags(tags); err != nil {
		panic(err)
	}
}
