package generator

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"net/url"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mbocsi/airlink/handler"
	"github.com/mbocsi/airlink/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	xpubBIP44    = "xpub6BosfCnifzxcFwrSzQiqu2DBVTshkCXacvNsWGYJVVhhawA7d4R5WSWGFNbi8Aw6ZRc1brxMyWMzG3DSSSSoekkudhUd9yLb6qx39T9nMdj"
	xpubBIP84    = "xpub6CatWdiZiodmUeTDp8LT5or8nmbKNcuyvz7WyksVFkKB4RHwCD3XyuvPEbvqAQY3rAPshWcMLoP2fMFMKHPJ4ZeZXYVUhLv1VMrjPC7PW6V"
	zpubBIP84    = "zpub6rFR7y4Q2AijBEqTUquhVz398htDFrtymD9xYYfG1m4wAcvPhXNfE3EfH1r1ADqtfSdVCToUG868RvUUkgDKf31mGDtKsAYz2oz2AGutZYs"
	xpubETH      = "xpub6DCoCpSuQZB2jawqnGMEPS63ePKWkwWPH4TU45Q7LPXWuNd8TMtVxRrgjtEshuqpK3mdhaWHPFsBngh5GFZaM6si3yZdUsT8ddYM3PwnATt"
)

func accountKey(t *testing.T, path string) (string, string) {
	t.Helper()
	master, err := hdkeychain.NewMaster(bip39.NewSeed(testMnemonic, ""), &chaincfg.MainNetParams)
	require.NoError(t, err)
	pub, err := master.ECPubKey()
	require.NoError(t, err)
	comps, err := proto.ParsePath(path)
	require.NoError(t, err)
	key := master
	for _, c := range comps {
		key, err = key.Derive(c)
		require.NoError(t, err)
	}
	neutered, err := key.Neuter()
	require.NoError(t, err)
	return neutered.String(), hex.EncodeToString(btcutil.Hash160(pub.SerializeCompressed())[:4])
}

func accountShare(protocol, key, path, fingerprint string) proto.Batch {
	return proto.Batch{{
		ID:         1,
		ProtocolID: protocol,
		Kind:       proto.KindAccountShareResponse,
		Payload: proto.AccountShareResponse{
			PublicKey:           key,
			DerivationPath:      path,
			IsExtendedPublicKey: true,
			MasterFingerprint:   fingerprint,
		},
	}}
}

func bigBatch(size int, seed int64) proto.Batch {
	tx := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(tx)
	return proto.Batch{
		{ID: 10, ProtocolID: "xtz", Kind: proto.KindTransactionSignRequest, Payload: proto.TransactionSignRequest{Transaction: tx, PublicKey: "edpk", CallbackURL: "airgap-wallet://?d="}},
		{ID: 11, ProtocolID: "cosmos", Kind: proto.KindMessageSignRequest, Payload: proto.MessageSignRequest{Message: "sign me", PublicKey: "cosmospub"}},
	}
}

// drain feeds frames from g into h until it succeeds.
func drain(t *testing.T, g Generator, h handler.Handler, limit int) proto.Batch {
	t.Helper()
	for i := 0; i < limit; i++ {
		frame := g.NextPart()
		require.True(t, h.CanHandle(frame), "frame %q", frame)
		outcome, err := h.Receive(frame)
		require.NoError(t, err)
		if outcome.Status == proto.StatusSuccess {
			batch, err := h.Result()
			require.NoError(t, err)
			return batch
		}
		require.Equal(t, proto.StatusPartial, outcome.Status)
	}
	t.Fatalf("no result after %d frames", limit)
	return nil
}

func TestNew(t *testing.T) {
	reg := proto.DefaultRegistry()
	for _, name := range Names {
		g, err := New(name, reg)
		require.NoError(t, err)
		assert.Equal(t, name, g.Name())
		assert.Equal(t, 0, g.PartCount())
	}
	_, err := New("qr-art", reg)
	assert.Error(t, err)
}

func TestTezosAccountShareFitsOneFrame(t *testing.T) {
	publicKey := "943a5c6e8e1f0b2d4c7a9e3f5b1d0c8a2e4f6b8d0a1c3e5f7b9d2a4c6e8f0b51"
	batch := proto.Batch{{
		ID:         1,
		ProtocolID: "xtz",
		Kind:       proto.KindAccountShareResponse,
		Payload: proto.AccountShareResponse{
			PublicKey:      publicKey,
			DerivationPath: "m/44h/1729h/0h/0h",
			IsActive:       true,
		},
	}}

	g := NewURGenerator()
	require.NoError(t, g.Create(batch, 300, 150))
	require.Equal(t, 1, g.PartCount())

	frame := g.NextPart()
	assert.True(t, strings.HasPrefix(frame, "UR:"))
	assert.Equal(t, frame, g.NextPart())

	h := handler.NewURHandler()
	outcome, err := h.Receive(frame)
	require.NoError(t, err)
	require.Equal(t, proto.StatusSuccess, outcome.Status)
	got, err := h.Result()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, publicKey, got[0].Payload.(proto.AccountShareResponse).PublicKey)
}

func TestURGeneratorFallsBackToMultiFrame(t *testing.T) {
	batch := bigBatch(2000, 1)
	g := NewURGenerator()
	require.NoError(t, g.Create(batch, 200, 1000))
	assert.Greater(t, g.PartCount(), 5)

	got := drain(t, g, handler.NewURHandler(), 1000)
	assert.Equal(t, batch, got)
}

func TestURGeneratorSingleFramePreference(t *testing.T) {
	batch := bigBatch(500, 2)
	g := NewURGenerator()
	require.NoError(t, g.Create(batch, 100, 1000))
	require.Equal(t, 1, g.PartCount())
	first := g.NextPart()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, g.NextPart())
	}
	assert.NotContains(t, first, "1-")
}

func TestURGeneratorCreateReplacesState(t *testing.T) {
	g := NewURGenerator()
	require.NoError(t, g.Create(bigBatch(2000, 3), 200, 1000))
	assert.Greater(t, g.PartCount(), 1)

	assert.Error(t, g.Create(nil, 200, 1000))
	assert.Equal(t, 0, g.PartCount())
	assert.Equal(t, "", g.NextPart())
	_, err := g.SingleForm("")
	assert.ErrorIs(t, err, ErrNotCreated)

	assert.Error(t, g.Create(bigBatch(10, 4), 0, 100))
}

func TestURGeneratorSingleFormLink(t *testing.T) {
	batch := bigBatch(800, 5)
	g := NewURGenerator()
	require.NoError(t, g.Create(batch, 100, 200))

	plain, err := g.SingleForm("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plain, "UR:AIRGAP-MESSAGE/"))
	assert.Equal(t, 1, strings.Count(plain, "/"))

	wrapped, err := g.SingleForm("airgap-wallet")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wrapped, "airgap-wallet://?ur="))
	u, err := url.Parse(wrapped)
	require.NoError(t, err)
	assert.Equal(t, plain, u.Query().Get("ur"))

	h := handler.NewURHandler()
	outcome, err := h.Receive(wrapped)
	require.NoError(t, err)
	require.Equal(t, proto.StatusSuccess, outcome.Status)
	got, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, batch, got)
}

func TestLegacyGeneratorRoundTrip(t *testing.T) {
	batch := bigBatch(600, 6)
	g := NewLegacyGenerator()
	require.NoError(t, g.Create(batch, 120, 400))
	count := g.PartCount()
	require.Greater(t, count, 1)

	seen := make([]string, 0, count*2)
	for i := 0; i < count*2; i++ {
		seen = append(seen, g.NextPart())
	}
	assert.Equal(t, seen[:count], seen[count:], "frames cycle modulo the frame count")

	g2 := NewLegacyGenerator()
	require.NoError(t, g2.Create(batch, 120, 400))
	got := drain(t, g2, handler.NewLegacyHandler(), count)
	assert.Equal(t, batch, got)
}

func TestLegacyGeneratorSingleForm(t *testing.T) {
	batch := bigBatch(300, 7)
	g := NewLegacyGenerator()
	require.NoError(t, g.Create(batch, 100, 100))

	single, err := g.SingleForm("airgap-vault://")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(single, "airgap-vault://?d="))

	h := handler.NewLegacyHandler()
	require.True(t, h.CanHandle(single))
	outcome, err := h.Receive(single)
	require.NoError(t, err)
	require.Equal(t, proto.StatusSuccess, outcome.Status)
	got, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, batch, got)
}

func TestBCURGeneratorEthRoundTrip(t *testing.T) {
	reg := proto.DefaultRegistry()
	batch := proto.Batch{{
		ID:         77,
		ProtocolID: "eth",
		Kind:       proto.KindTransactionSignRequest,
		Payload: proto.TransactionSignRequest{
			Transaction: bytes.Repeat([]byte{0x02, 0xf8}, 400),
			PublicKey:   common.HexToAddress("0x9858effd232b4033e47d90003d41ec34ecaeda94").Hex(),
		},
	}}

	g := NewBCURGenerator(reg)
	require.True(t, g.CanHandle(batch))
	require.NoError(t, g.Create(batch, 150, 300))
	assert.Greater(t, g.PartCount(), 1)
	assert.True(t, strings.HasPrefix(g.NextPart(), "UR:ETH-SIGN-REQUEST/"))

	got := drain(t, g, handler.NewBCURHandler(reg), 1000)
	assert.Equal(t, batch, got)
}

func TestBCURGeneratorRejectsUnsupported(t *testing.T) {
	reg := proto.DefaultRegistry()
	g := NewBCURGenerator(reg)
	batch := bigBatch(10, 8)

	assert.False(t, g.CanHandle(batch))
	assert.False(t, g.CanHandle(batch[:1]))
	assert.ErrorIs(t, g.Create(batch, 100, 100), ErrUnsupportedBatch)
	assert.Equal(t, 0, g.PartCount())
}

func TestMetaMaskGenerator(t *testing.T) {
	reg := proto.DefaultRegistry()
	ethKey, fingerprint := accountKey(t, "m/44'/60'/0'")
	assert.Equal(t, xpubETH, ethKey)

	g := NewMetaMaskGenerator(reg)
	assert.Equal(t, "metamask", g.Name())

	eth := accountShare("eth", ethKey, "m/44'/60'/0'", fingerprint)
	require.True(t, g.CanHandle(eth))
	require.NoError(t, g.Create(eth, 200, 500))
	assert.Equal(t, 1, g.PartCount())
	assert.True(t, strings.HasPrefix(g.NextPart(), "UR:CRYPTO-HDKEY/"))

	btc := accountShare("bitcoin", xpubBIP44, "m/44'/0'/0'", fingerprint)
	assert.False(t, g.CanHandle(btc))
	assert.ErrorIs(t, g.Create(btc, 200, 500), ErrUnsupportedBatch)
	assert.Equal(t, 0, g.PartCount())

	request := proto.Batch{{ProtocolID: "eth", Kind: proto.KindMessageSignRequest, Payload: proto.MessageSignRequest{Message: "hi"}}}
	assert.False(t, g.CanHandle(request))
}

func TestXPubGenerator(t *testing.T) {
	reg := proto.DefaultRegistry()
	key84, fingerprint := accountKey(t, "m/84'/0'/0'")
	require.Equal(t, xpubBIP84, key84)

	g := NewXPubGenerator(reg)
	require.NoError(t, g.Create(accountShare("bitcoin_segwit", key84, "m/84'/0'/0'", fingerprint), 100, 100))
	assert.Equal(t, 1, g.PartCount())
	assert.Equal(t, zpubBIP84, g.NextPart())
	single, err := g.SingleForm("airgap-wallet")
	require.NoError(t, err)
	assert.Equal(t, zpubBIP84, single)

	// zpub input is accepted and normalized
	require.NoError(t, g.Create(accountShare("bitcoin_segwit", zpubBIP84, "m/84'/0'/0'", fingerprint), 100, 100))
	assert.Equal(t, zpubBIP84, g.NextPart())

	require.NoError(t, g.Create(accountShare("bitcoin", xpubBIP44, "m/44'/0'/0'", fingerprint), 100, 100))
	assert.Equal(t, xpubBIP44, g.NextPart())
}

func TestXPubGeneratorRejects(t *testing.T) {
	reg := proto.DefaultRegistry()
	g := NewXPubGenerator(reg)

	tests := []proto.Batch{
		nil,
		accountShare("eth", xpubETH, "m/44'/60'/0'", ""),
		accountShare("bitcoin", "not-a-key", "m/44'/0'/0'", ""),
		accountShare("bitcoin", xpubBIP44, "m/44'/0'/0'", "xyz"),
		append(accountShare("bitcoin", xpubBIP44, "", ""), accountShare("bitcoin", xpubBIP44, "", "")...),
		{{ProtocolID: "bitcoin", Kind: proto.KindAccountShareResponse, Payload: proto.AccountShareResponse{PublicKey: xpubBIP44}}},
	}
	for i, batch := range tests {
		assert.False(t, g.CanHandle(batch), "case %d", i)
		assert.Error(t, g.Create(batch, 100, 100), "case %d", i)
		assert.Equal(t, 0, g.PartCount(), "case %d", i)
	}
}

func TestDescriptorGenerator(t *testing.T) {
	reg := proto.DefaultRegistry()
	g := NewDescriptorGenerator(reg)

	require.NoError(t, g.Create(accountShare("bitcoin_segwit", zpubBIP84, "m/84'/0'/0'", "73c5da0a"), 100, 100))
	assert.Equal(t, "wpkh([73c5da0a/84h/0h/0h]"+xpubBIP84+"/0/*)#afwvtk2s", g.NextPart())

	require.NoError(t, g.Create(accountShare("bitcoin", xpubBIP44, "", "73c5da0a"), 100, 100))
	assert.Equal(t, "pkh([73c5da0a/44h/0h/0h]"+xpubBIP44+"/0/*)#5l2aanww", g.NextPart())

	require.NoError(t, g.Create(accountShare("bitcoin", xpubBIP44, "m/49'/0'/0'", ""), 100, 100))
	assert.True(t, strings.HasPrefix(g.NextPart(), "sh(wpkh("+xpubBIP44+"/0/*))#"))
}

func TestDescriptorChecksum(t *testing.T) {
	sum, err := descriptorChecksum("raw(deadbeef)")
	require.NoError(t, err)
	assert.Equal(t, "89f8spxm", sum)

	_, err = descriptorChecksum("raw(é)")
	assert.Error(t, err)
}

func TestXPubGeneratorKeyVersions(t *testing.T) {
	reg := proto.DefaultRegistry()
	_, fingerprint := accountKey(t, "m/84'/0'/0'")
	g := NewXPubGenerator(reg)

	require.NoError(t, g.Create(accountShare("bitcoin_segwit", zpubBIP84, "m/84'/0'/0'", fingerprint), 100, 100))
	assert.Equal(t, zpubBIP84, g.NextPart())

	key, err := hdkeychain.NewKeyFromString(xpubBIP84)
	require.NoError(t, err)
	tpub, err := key.CloneWithVersion(chaincfg.TestNet3Params.HDPublicKeyID[:])
	require.NoError(t, err)
	testnet := accountShare("bitcoin_segwit", tpub.String(), "m/84'/0'/0'", fingerprint)
	assert.False(t, g.CanHandle(testnet))
	assert.ErrorIs(t, g.Create(testnet, 100, 100), ErrUnsupportedBatch)
}
