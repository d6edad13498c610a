package bcur

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/ur"
)

// Known reports whether typ is one of the payload types this package maps.
func Known(typ string) bool {
	switch typ {
	case TypePSBT, TypeHDKey, TypeEthSignRequest, TypeEthSignature:
		return true
	}
	return false
}

// Decode converts a completed UR into messages. Types without a mapping
// return ErrUnsupported.
func Decode(u ur.UR, reg *proto.Registry) (proto.Batch, error) {
	var (
		msg proto.Message
		err error
	)
	switch u.Type {
	case TypePSBT:
		msg, err = decodePSBT(u.CBOR, reg)
	case TypeEthSignRequest:
		msg, err = decodeEthSignRequest(u.CBOR, reg)
	case TypeEthSignature:
		msg, err = decodeEthSignature(u.CBOR, reg)
	case TypeHDKey:
		msg, err = decodeHDKey(u.CBOR, reg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, u.Type)
	}
	if err != nil {
		return nil, err
	}
	return proto.Batch{msg}, nil
}

// Supports reports whether m has a UR mapping under reg.
func Supports(m proto.Message, reg *proto.Registry) bool {
	p, ok := reg.Lookup(m.ProtocolID)
	if !ok {
		return false
	}
	switch payload := m.Payload.(type) {
	case proto.TransactionSignRequest, proto.TransactionSignResponse:
		return p.Has(proto.CapBitcoinPSBT) || p.Has(proto.CapEthereum)
	case proto.MessageSignRequest:
		return p.Has(proto.CapEthereum)
	case proto.AccountShareResponse:
		return p.Has(proto.CapExtendedKeys) && payload.IsExtendedPublicKey
	}
	return false
}

// Encode converts one message into its UR form.
func Encode(m proto.Message, reg *proto.Registry) (ur.UR, error) {
	if !Supports(m, reg) {
		return ur.UR{}, fmt.Errorf("%w: %s message for %q", ErrUnsupported, m.Kind, m.ProtocolID)
	}
	opts, err := reg.Options(m.ProtocolID)
	if err != nil {
		return ur.UR{}, err
	}

	var (
		typ  string
		body any
	)
	switch p := m.Payload.(type) {
	case proto.TransactionSignRequest:
		if opts.Protocol.Has(proto.CapBitcoinPSBT) {
			typ, body, err = TypePSBT, p.Transaction, checkPSBT(p.Transaction)
		} else {
			typ = TypeEthSignRequest
			body, err = ethRequest(m.ID, p.Transaction, txDataType(p.Transaction), p.PublicKey, p.CallbackURL, opts)
		}
	case proto.TransactionSignResponse:
		if opts.Protocol.Has(proto.CapBitcoinPSBT) {
			typ, body, err = TypePSBT, p.Transaction, checkPSBT(p.Transaction)
		} else {
			rid := requestID(m.ID)
			typ, body = TypeEthSignature, EthSignature{RequestID: &rid, Signature: p.Transaction, Origin: p.AccountIdentifier}
		}
	case proto.MessageSignRequest:
		typ = TypeEthSignRequest
		body, err = ethRequest(m.ID, messageBytes(p.Message), DataTypePersonalMessage, p.PublicKey, p.CallbackURL, opts)
	case proto.AccountShareResponse:
		typ = TypeHDKey
		body, err = hdKey(p, opts)
	}
	if err != nil {
		return ur.UR{}, err
	}

	data, err := encMode.Marshal(body)
	if err != nil {
		return ur.UR{}, fmt.Errorf("encode %s: %w", typ, err)
	}
	return ur.New(typ, data)
}

func checkPSBT(raw []byte) error {
	if _, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false); err != nil {
		return fmt.Errorf("invalid psbt: %w", err)
	}
	return nil
}

func decodePSBT(data []byte, reg *proto.Registry) (proto.Message, error) {
	var raw []byte
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return proto.Message{}, fmt.Errorf("decode %s: %w", TypePSBT, err)
	}
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return proto.Message{}, fmt.Errorf("invalid psbt: %w", err)
	}

	protocol := "bitcoin_segwit"
	if !reg.Has(protocol, proto.CapBitcoinPSBT) {
		p, ok := reg.LookupCoinType(0, proto.CapBitcoinPSBT)
		if !ok {
			return proto.Message{}, fmt.Errorf("%w: no psbt protocol registered", ErrUnsupported)
		}
		protocol = p.ID
	}

	msg := proto.Message{ID: crc32.ChecksumIEEE(raw), ProtocolID: protocol}
	if psbtSigned(packet) {
		msg.Kind = proto.KindTransactionSignResponse
		msg.Payload = proto.TransactionSignResponse{Transaction: raw}
	} else {
		msg.Kind = proto.KindTransactionSignRequest
		msg.Payload = proto.TransactionSignRequest{Transaction: raw}
	}
	return msg, nil
}

func psbtSigned(p *psbt.Packet) bool {
	for _, in := range p.Inputs {
		if len(in.PartialSigs) > 0 || len(in.FinalScriptSig) > 0 || len(in.FinalScriptWitness) > 0 || len(in.TaprootKeySpendSig) > 0 {
			return true
		}
	}
	return false
}

// requestID embeds a message id in the leading bytes of a random UUID.
func requestID(id uint32) RequestID {
	u := uuid.New()
	binary.BigEndian.PutUint32(u[:4], id)
	return RequestID(u)
}

func (r *RequestID) messageID() uint32 {
	if r == nil {
		return 0
	}
	return uuid.UUID(*r).ID()
}

func txDataType(tx []byte) int {
	// EIP-2718 typed transactions start below 0x7f, legacy ones are RLP lists.
	if len(tx) > 0 && tx[0] <= 0x7f {
		return DataTypeTypedTransaction
	}
	return DataTypeTransaction
}

func messageBytes(msg string) []byte {
	if strings.HasPrefix(msg, "0x") {
		if b, err := hexutil.Decode(msg); err == nil {
			return b
		}
	}
	return []byte(msg)
}

func messageString(b []byte) string {
	if utf8.Valid(b) && strings.IndexFunc(string(b), func(r rune) bool {
		return !unicode.IsPrint(r) && !unicode.IsSpace(r)
	}) < 0 {
		return string(b)
	}
	return hexutil.Encode(b)
}

// ethAddress accepts a hex address or a hex secp256k1 public key.
func ethAddress(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	if common.IsHexAddress(key) {
		return common.HexToAddress(key).Bytes(), nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ethereum key %q", key)
	}
	if len(raw) == 33 {
		pub, err := crypto.DecompressPubkey(raw)
		if err != nil {
			return nil, err
		}
		return crypto.PubkeyToAddress(*pub).Bytes(), nil
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return nil, err
	}
	return crypto.PubkeyToAddress(*pub).Bytes(), nil
}

func chainID(network string) int64 {
	if n, err := strconv.ParseInt(network, 10, 64); err == nil && n > 0 {
		return n
	}
	return 1
}

func ethRequest(id uint32, data []byte, dataType int, publicKey, origin string, opts *proto.Options) (EthSignRequest, error) {
	addr, err := ethAddress(publicKey)
	if err != nil {
		return EthSignRequest{}, err
	}
	rid := requestID(id)
	return EthSignRequest{
		RequestID:      &rid,
		SignData:       data,
		DataType:       dataType,
		ChainID:        chainID(opts.Network),
		DerivationPath: NewKeypath(opts.Path, 0),
		Address:        addr,
		Origin:         origin,
	}, nil
}

func ethProtocol(reg *proto.Registry) (string, error) {
	p, ok := reg.LookupCoinType(60, proto.CapEthereum)
	if !ok {
		return "", fmt.Errorf("%w: no ethereum protocol registered", ErrUnsupported)
	}
	return p.ID, nil
}

func decodeEthSignRequest(data []byte, reg *proto.Registry) (proto.Message, error) {
	var req EthSignRequest
	if err := decMode.Unmarshal(data, &req); err != nil {
		return proto.Message{}, fmt.Errorf("decode %s: %w", TypeEthSignRequest, err)
	}
	protocol, err := ethProtocol(reg)
	if err != nil {
		return proto.Message{}, err
	}

	var publicKey string
	if len(req.Address) == common.AddressLength {
		publicKey = common.BytesToAddress(req.Address).Hex()
	}

	msg := proto.Message{ID: req.RequestID.messageID(), ProtocolID: protocol}
	switch req.DataType {
	case DataTypeTransaction, DataTypeTypedTransaction:
		msg.Kind = proto.KindTransactionSignRequest
		msg.Payload = proto.TransactionSignRequest{Transaction: req.SignData, PublicKey: publicKey, CallbackURL: req.Origin}
	case DataTypeTypedData, DataTypePersonalMessage:
		msg.Kind = proto.KindMessageSignRequest
		msg.Payload = proto.MessageSignRequest{Message: messageString(req.SignData), PublicKey: publicKey, CallbackURL: req.Origin}
	default:
		return proto.Message{}, fmt.Errorf("%w: eth data type %d", ErrUnsupported, req.DataType)
	}
	return msg, nil
}

func decodeEthSignature(data []byte, reg *proto.Registry) (proto.Message, error) {
	var sig EthSignature
	if err := decMode.Unmarshal(data, &sig); err != nil {
		return proto.Message{}, fmt.Errorf("decode %s: %w", TypeEthSignature, err)
	}
	protocol, err := ethProtocol(reg)
	if err != nil {
		return proto.Message{}, err
	}
	return proto.Message{
		ID:         sig.RequestID.messageID(),
		ProtocolID: protocol,
		Kind:       proto.KindTransactionSignResponse,
		Payload:    proto.TransactionSignResponse{Transaction: sig.Signature, AccountIdentifier: sig.Origin},
	}, nil
}

func hdKey(p proto.AccountShareResponse, opts *proto.Options) (HDKey, error) {
	key, err := hdkeychain.NewKeyFromString(p.PublicKey)
	if err != nil {
		return HDKey{}, fmt.Errorf("invalid extended key: %w", err)
	}
	if key.IsPrivate() {
		return HDKey{}, fmt.Errorf("%w: private extended key", ErrUnsupported)
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return HDKey{}, err
	}

	path := opts.Path
	if p.DerivationPath != "" {
		if path, err = proto.ParsePath(p.DerivationPath); err != nil {
			return HDKey{}, err
		}
	}
	var fingerprint uint64
	if p.MasterFingerprint != "" {
		if fingerprint, err = strconv.ParseUint(p.MasterFingerprint, 16, 32); err != nil {
			return HDKey{}, fmt.Errorf("invalid master fingerprint %q", p.MasterFingerprint)
		}
	}

	return HDKey{
		KeyData:           pub.SerializeCompressed(),
		ChainCode:         key.ChainCode(),
		UseInfo:           &CoinInfo{Type: opts.Protocol.CoinType},
		Origin:            NewKeypath(path, uint32(fingerprint)),
		ParentFingerprint: key.ParentFingerprint(),
		Name:              p.GroupLabel,
	}, nil
}

// protocolFor picks the protocol for coinType, preferring the one whose
// default account path matches path.
func protocolFor(reg *proto.Registry, coinType uint32, path []uint32) (string, bool) {
	formatted := proto.FormatPath(path, "'", true)
	var fallback string
	for _, p := range reg.List() {
		if p.CoinType != coinType || !p.Has(proto.CapExtendedKeys) {
			continue
		}
		if p.DerivationPath == formatted {
			return p.ID, true
		}
		if fallback == "" {
			fallback = p.ID
		}
	}
	return fallback, fallback != ""
}

func decodeHDKey(data []byte, reg *proto.Registry) (proto.Message, error) {
	var key HDKey
	if err := decMode.Unmarshal(data, &key); err != nil {
		return proto.Message{}, fmt.Errorf("decode %s: %w", TypeHDKey, err)
	}
	if key.IsPrivate || len(key.KeyData) != 33 || len(key.ChainCode) != 32 {
		return proto.Message{}, fmt.Errorf("%w: hdkey without public key material", ErrUnsupported)
	}
	if _, err := btcec.ParsePubKey(key.KeyData); err != nil {
		return proto.Message{}, fmt.Errorf("decode %s: %w", TypeHDKey, err)
	}

	var (
		path        []uint32
		fingerprint uint32
		err         error
	)
	if key.Origin != nil {
		if path, err = key.Origin.Path(); err != nil {
			return proto.Message{}, err
		}
		fingerprint = key.Origin.SourceFingerprint
	}
	var coinType uint32
	if key.UseInfo != nil {
		coinType = key.UseInfo.Type
	}
	protocol, ok := protocolFor(reg, coinType, path)
	if !ok {
		return proto.Message{}, fmt.Errorf("%w: no protocol for coin type %d", ErrUnsupported, coinType)
	}

	var childNum uint32
	if len(path) > 0 {
		childNum = path[len(path)-1]
	}
	parent := make([]byte, 4)
	binary.BigEndian.PutUint32(parent, key.ParentFingerprint)
	ext := hdkeychain.NewExtendedKey(chaincfg.MainNetParams.HDPublicKeyID[:], key.KeyData, key.ChainCode, parent, uint8(len(path)), childNum, false)

	return proto.Message{
		ID:         crc32.ChecksumIEEE(key.KeyData),
		ProtocolID: protocol,
		Kind:       proto.KindAccountShareResponse,
		Payload: proto.AccountShareResponse{
			PublicKey:           ext.String(),
			DerivationPath:      proto.FormatPath(path, "'", true),
			IsExtendedPublicKey: true,
			MasterFingerprint:   fmt.Sprintf("%08x", fingerprint),
			IsActive:            true,
			GroupLabel:          key.Name,
		},
	}, nil
}
