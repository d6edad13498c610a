package proto

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatch() Batch {
	return Batch{
		{
			ID:         1,
			ProtocolID: "xtz",
			Kind:       KindAccountShareResponse,
			Payload: AccountShareResponse{
				PublicKey:      "943b6ba39ac9dd3257db8cf2eaac575d6a8aa98bc1d18d0f3b0b5e2a3fb0d551",
				DerivationPath: "m/44h/1729h/0h/0h",
				IsActive:       true,
			},
		},
		{
			ID:         2,
			ProtocolID: "eth",
			Kind:       KindTransactionSignRequest,
			Payload: TransactionSignRequest{
				Transaction: []byte{0xde, 0xad, 0xbe, 0xef},
				PublicKey:   "02aabb",
				CallbackURL: "airgap-wallet://?d=",
			},
		},
		{
			ID:         3,
			ProtocolID: "eth",
			Kind:       KindMessageSignResponse,
			Payload:    MessageSignResponse{Message: "hello", PublicKey: "02aabb", Signature: "0x01"},
		},
	}
}

func TestEncodeDecodeBatch(t *testing.T) {
	batch := sampleBatch()

	data, err := EncodeBatch(batch)
	require.NoError(t, err)

	decoded, err := DecodeBatch(data)
	require.NoError(t, err)
	assert.Equal(t, batch, decoded)
}

func TestEncodeBatch_Empty(t *testing.T) {
	_, err := EncodeBatch(nil)
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestEncodeBatch_KindPayloadMismatch(t *testing.T) {
	_, err := EncodeBatch(Batch{{ID: 1, Kind: KindMessageSignRequest, Payload: AccountShareRequest{}}})
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestDecodeBatch_WrongVersion(t *testing.T) {
	data, err := encMode.Marshal(wireBatch{Version: 2, Messages: []wireMessage{{Kind: 2, Payload: cbor.RawMessage{0x80}}}})
	require.NoError(t, err)

	_, err = DecodeBatch(data)
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestDecodeBatch_Garbage(t *testing.T) {
	_, err := DecodeBatch([]byte("not cbor at all"))
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestDecodeBatch_UnknownKindKeepsRawPayload(t *testing.T) {
	data, err := encMode.Marshal(wireBatch{
		Version:  NativeVersion,
		Messages: []wireMessage{{Kind: 42, Protocol: "eth", ID: 9, Payload: cbor.RawMessage{0x43, 1, 2, 3}}},
	})
	require.NoError(t, err)

	batch, err := DecodeBatch(data)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.False(t, batch[0].Kind.Valid())

	raw, ok := batch[0].Payload.(RawPayload)
	require.True(t, ok)
	assert.Equal(t, Kind(42), raw.Kind())
	assert.Equal(t, []byte{0x43, 1, 2, 3}, raw.Data)

	// raw bodies survive re-encoding untouched
	again, err := EncodeBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	input := `[
		{"id": 7, "protocol": "xtz", "type": "account-share-response",
		 "payload": {"publicKey": "abcd", "derivationPath": "m/44h/1729h/0h/0h", "isActive": true}},
		{"id": 8, "protocol": "eth", "type": "4", "payload": {"transaction": "3q2+7w==", "publicKey": "02"}}
	]`

	var batch Batch
	require.NoError(t, json.Unmarshal([]byte(input), &batch))
	require.Len(t, batch, 2)

	assert.Equal(t, KindAccountShareResponse, batch[0].Kind)
	assert.Equal(t, AccountShareResponse{PublicKey: "abcd", DerivationPath: "m/44h/1729h/0h/0h", IsActive: true}, batch[0].Payload)

	assert.Equal(t, KindTransactionSignRequest, batch[1].Kind)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, batch[1].Payload.(TransactionSignRequest).Transaction)
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	batch := sampleBatch()

	data, err := json.Marshal(batch)
	require.NoError(t, err)

	var decoded Batch
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, batch, decoded)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"account-share-request", KindAccountShareRequest, true},
		{"  MESSAGE-SIGN-RESPONSE ", KindMessageSignResponse, true},
		{"5", KindTransactionSignResponse, true},
		{"bogus", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrUnknownKind, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestBatch_Kinds(t *testing.T) {
	batch := Batch{
		{Kind: KindMessageSignRequest},
		{Kind: KindAccountShareResponse},
		{Kind: KindMessageSignRequest},
	}
	assert.Equal(t, []Kind{KindMessageSignRequest, KindAccountShareResponse}, batch.Kinds())
}

func TestParseTransportKind(t *testing.T) {
	for in, want := range map[string]TransportKind{
		"":         TransportQRScanner,
		"qr":       TransportQRScanner,
		"deeplink": TransportDeepLink,
		"Paste":    TransportPaste,
	} {
		got, err := ParseTransportKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTransportKind("carrier-pigeon")
	assert.Error(t, err)
}

func TestOutcome_PartialClamps(t *testing.T) {
	assert.Equal(t, 0.0, Partial(-1).Progress)
	assert.Equal(t, 1.0, Partial(3).Progress)
	assert.Equal(t, StatusPartial, Partial(0.5).Status)
	assert.Equal(t, 1.0, Success().Progress)
}
