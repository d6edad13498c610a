package bcur

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/ur"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func accountKey(t *testing.T, path string) (string, string) {
	t.Helper()
	master, err := hdkeychain.NewMaster(bip39.NewSeed(testMnemonic, ""), &chaincfg.MainNetParams)
	require.NoError(t, err)
	pub, err := master.ECPubKey()
	require.NoError(t, err)
	fingerprint := hex.EncodeToString(btcutil.Hash160(pub.SerializeCompressed())[:4])

	comps, err := proto.ParsePath(path)
	require.NoError(t, err)
	key := master
	for _, c := range comps {
		key, err = key.Derive(c)
		require.NoError(t, err)
	}
	neutered, err := key.Neuter()
	require.NoError(t, err)
	return neutered.String(), fingerprint
}

func testPSBT(t *testing.T, signed bool) []byte {
	t.Helper()
	packet, err := psbt.New(
		[]*wire.OutPoint{{Hash: chainhash.Hash{1, 2, 3}, Index: 1}},
		[]*wire.TxOut{wire.NewTxOut(50000, append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0xab}, 20)...))},
		2, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	require.NoError(t, err)
	if signed {
		packet.Inputs[0].WitnessUtxo = wire.NewTxOut(60000, append([]byte{0x00, 0x14}, bytes.Repeat([]byte{0xcd}, 20)...))
		packet.Inputs[0].FinalScriptWitness = []byte{0x02, 0x01, 0xaa, 0x01, 0xbb}
	}
	var buf bytes.Buffer
	require.NoError(t, packet.Serialize(&buf))
	return buf.Bytes()
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(TypePSBT))
	assert.True(t, Known(TypeHDKey))
	assert.False(t, Known(TypeBytes))
	assert.False(t, Known("airgap-message"))
}

func TestKeypathRoundTrip(t *testing.T) {
	path := []uint32{84 + proto.HardenedOffset, proto.HardenedOffset, proto.HardenedOffset, 0}
	kp := NewKeypath(path, 0x73c5da0a)
	assert.Equal(t, uint8(4), kp.Depth)

	data, err := encMode.Marshal(kp)
	require.NoError(t, err)
	// tag 304
	assert.Equal(t, []byte{0xd9, 0x01, 0x30}, data[:3])

	var decoded Keypath
	require.NoError(t, decMode.Unmarshal(data, &decoded))
	got, err := decoded.Path()
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, uint32(0x73c5da0a), decoded.SourceFingerprint)
}

func TestKeypathRejectsWildcard(t *testing.T) {
	kp := Keypath{Components: []any{[]any{}, false}}
	_, err := kp.Path()
	assert.ErrorIs(t, err, ErrUnsupported)

	kp = Keypath{Components: []any{uint64(1)}}
	_, err = kp.Path()
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPSBTRequestRoundTrip(t *testing.T) {
	reg := proto.DefaultRegistry()
	raw := testPSBT(t, false)
	msg := proto.Message{ID: 3, ProtocolID: "bitcoin_segwit", Kind: proto.KindTransactionSignRequest, Payload: proto.TransactionSignRequest{Transaction: raw}}

	u, err := Encode(msg, reg)
	require.NoError(t, err)
	assert.Equal(t, TypePSBT, u.Type)

	batch, err := Decode(u, reg)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, proto.KindTransactionSignRequest, batch[0].Kind)
	assert.Equal(t, "bitcoin_segwit", batch[0].ProtocolID)
	assert.Equal(t, raw, batch[0].Payload.(proto.TransactionSignRequest).Transaction)
}

func TestPSBTSignedBecomesResponse(t *testing.T) {
	reg := proto.DefaultRegistry()
	raw := testPSBT(t, true)
	data, err := encMode.Marshal(raw)
	require.NoError(t, err)

	batch, err := Decode(ur.UR{Type: TypePSBT, CBOR: data}, reg)
	require.NoError(t, err)
	assert.Equal(t, proto.KindTransactionSignResponse, batch[0].Kind)
	assert.Equal(t, raw, batch[0].Payload.(proto.TransactionSignResponse).Transaction)
}

func TestPSBTRejectsGarbage(t *testing.T) {
	reg := proto.DefaultRegistry()
	msg := proto.Message{ProtocolID: "bitcoin", Kind: proto.KindTransactionSignRequest, Payload: proto.TransactionSignRequest{Transaction: []byte("nope")}}
	_, err := Encode(msg, reg)
	assert.Error(t, err)
}

func TestEthSignRequestRoundTrip(t *testing.T) {
	reg := proto.DefaultRegistry()
	address := common.HexToAddress("0x9858effd232b4033e47d90003d41ec34ecaeda94").Hex()
	msg := proto.Message{
		ID:         42,
		ProtocolID: "eth",
		Kind:       proto.KindTransactionSignRequest,
		Payload: proto.TransactionSignRequest{
			Transaction: []byte{0x02, 0xf8, 0x6f, 0x01, 0x80},
			PublicKey:   address,
			CallbackURL: "airgap-wallet://?ur=",
		},
	}

	u, err := Encode(msg, reg)
	require.NoError(t, err)
	assert.Equal(t, TypeEthSignRequest, u.Type)

	var req EthSignRequest
	require.NoError(t, decMode.Unmarshal(u.CBOR, &req))
	assert.Equal(t, DataTypeTypedTransaction, req.DataType)
	assert.Equal(t, int64(1), req.ChainID)

	batch, err := Decode(u, reg)
	require.NoError(t, err)
	assert.Equal(t, msg, batch[0])
}

func TestEthLegacyTransactionDataType(t *testing.T) {
	assert.Equal(t, DataTypeTransaction, txDataType([]byte{0xf8, 0x6c}))
	assert.Equal(t, DataTypeTypedTransaction, txDataType([]byte{0x02}))
}

func TestEthMessageSignRequestRoundTrip(t *testing.T) {
	reg := proto.DefaultRegistry()
	msg := proto.Message{
		ID:         7,
		ProtocolID: "eth",
		Kind:       proto.KindMessageSignRequest,
		Payload:    proto.MessageSignRequest{Message: "hello airgap"},
	}
	u, err := Encode(msg, reg)
	require.NoError(t, err)
	batch, err := Decode(u, reg)
	require.NoError(t, err)
	assert.Equal(t, msg, batch[0])

	binary := proto.Message{ID: 8, ProtocolID: "eth", Kind: proto.KindMessageSignRequest, Payload: proto.MessageSignRequest{Message: "0x00ff10"}}
	u, err = Encode(binary, reg)
	require.NoError(t, err)
	batch, err = Decode(u, reg)
	require.NoError(t, err)
	assert.Equal(t, "0x00ff10", batch[0].Payload.(proto.MessageSignRequest).Message)
}

func TestEthSignatureRoundTrip(t *testing.T) {
	reg := proto.DefaultRegistry()
	msg := proto.Message{
		ID:         99,
		ProtocolID: "eth",
		Kind:       proto.KindTransactionSignResponse,
		Payload:    proto.TransactionSignResponse{Transaction: bytes.Repeat([]byte{0x11}, 65), AccountIdentifier: "vault"},
	}
	u, err := Encode(msg, reg)
	require.NoError(t, err)
	assert.Equal(t, TypeEthSignature, u.Type)

	batch, err := Decode(u, reg)
	require.NoError(t, err)
	assert.Equal(t, msg, batch[0])
}

func TestHDKeyRoundTrip(t *testing.T) {
	reg := proto.DefaultRegistry()
	xpub, fingerprint := accountKey(t, "m/44'/0'/0'")
	assert.Equal(t, "73c5da0a", fingerprint)

	msg := proto.Message{
		ID:         1,
		ProtocolID: "bitcoin",
		Kind:       proto.KindAccountShareResponse,
		Payload: proto.AccountShareResponse{
			PublicKey:           xpub,
			DerivationPath:      "m/44'/0'/0'",
			IsExtendedPublicKey: true,
			MasterFingerprint:   fingerprint,
			GroupLabel:          "Savings",
		},
	}
	u, err := Encode(msg, reg)
	require.NoError(t, err)
	assert.Equal(t, TypeHDKey, u.Type)

	batch, err := Decode(u, reg)
	require.NoError(t, err)
	got := batch[0]
	assert.Equal(t, "bitcoin", got.ProtocolID)
	assert.Equal(t, proto.KindAccountShareResponse, got.Kind)

	payload := got.Payload.(proto.AccountShareResponse)
	assert.Equal(t, xpub, payload.PublicKey)
	assert.Equal(t, "m/44'/0'/0'", payload.DerivationPath)
	assert.Equal(t, fingerprint, payload.MasterFingerprint)
	assert.Equal(t, "Savings", payload.GroupLabel)
	assert.True(t, payload.IsExtendedPublicKey)
}

func TestHDKeyPicksProtocolByPath(t *testing.T) {
	reg := proto.DefaultRegistry()
	xpub, fingerprint := accountKey(t, "m/84'/0'/0'")
	msg := proto.Message{
		ProtocolID: "bitcoin_segwit",
		Kind:       proto.KindAccountShareResponse,
		Payload:    proto.AccountShareResponse{PublicKey: xpub, DerivationPath: "m/84'/0'/0'", IsExtendedPublicKey: true, MasterFingerprint: fingerprint},
	}
	u, err := Encode(msg, reg)
	require.NoError(t, err)
	batch, err := Decode(u, reg)
	require.NoError(t, err)
	assert.Equal(t, "bitcoin_segwit", batch[0].ProtocolID)
}

func TestUnsupported(t *testing.T) {
	reg := proto.DefaultRegistry()
	msg := proto.Message{ProtocolID: "xtz", Kind: proto.KindTransactionSignRequest, Payload: proto.TransactionSignRequest{Transaction: []byte{1}}}
	assert.False(t, Supports(msg, reg))
	_, err := Encode(msg, reg)
	assert.ErrorIs(t, err, ErrUnsupported)

	plain := proto.Message{ProtocolID: "bitcoin", Kind: proto.KindAccountShareResponse, Payload: proto.AccountShareResponse{PublicKey: "bc1q"}}
	assert.False(t, Supports(plain, reg))

	_, err = Decode(ur.UR{Type: TypeBytes, CBOR: []byte{0x41, 0x00}}, reg)
	assert.ErrorIs(t, err, ErrUnsupported)
}
