package generator

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/mbocsi/airlink/proto"
)

// SLIP-0132 public key versions.
var (
	versionXPub = chaincfg.MainNetParams.HDPublicKeyID[:]
	versionYPub = []byte{0x04, 0x9d, 0x7c, 0xb2}
	versionZPub = []byte{0x04, 0xb2, 0x47, 0x46}
)

const (
	purposeLegacy       = 44 + proto.HardenedOffset
	purposeNestedSegwit = 49 + proto.HardenedOffset
	purposeSegwit       = 84 + proto.HardenedOffset
)

// account is a Bitcoin extended public key share, normalized to xpub.
type account struct {
	key         *hdkeychain.ExtendedKey
	path        []uint32
	fingerprint string
}

func (a account) purpose() uint32 {
	if len(a.path) == 0 {
		return 0
	}
	return a.path[0]
}

// bitcoinAccount extracts the single Bitcoin account share from batch.
func bitcoinAccount(batch proto.Batch, reg *proto.Registry) (account, error) {
	if len(batch) != 1 {
		return account{}, ErrUnsupportedBatch
	}
	m := batch[0]
	share, ok := m.Payload.(proto.AccountShareResponse)
	if !ok || !share.IsExtendedPublicKey {
		return account{}, ErrUnsupportedBatch
	}
	if !reg.Has(m.ProtocolID, proto.CapBitcoinPSBT|proto.CapExtendedKeys) {
		return account{}, ErrUnsupportedBatch
	}

	if err := checkKeyVersion(share.PublicKey); err != nil {
		return account{}, err
	}
	key, err := hdkeychain.NewKeyFromString(share.PublicKey)
	if err != nil {
		return account{}, fmt.Errorf("invalid extended key: %w", err)
	}
	if key.IsPrivate() {
		return account{}, ErrUnsupportedBatch
	}
	if key, err = key.CloneWithVersion(versionXPub); err != nil {
		return account{}, err
	}

	pathStr := share.DerivationPath
	if pathStr == "" {
		p, _ := reg.Lookup(m.ProtocolID)
		pathStr = p.DerivationPath
	}
	path, err := proto.ParsePath(pathStr)
	if err != nil {
		return account{}, err
	}

	fingerprint := share.MasterFingerprint
	if fingerprint != "" {
		if _, err := strconv.ParseUint(fingerprint, 16, 32); err != nil || len(fingerprint) != 8 {
			return account{}, fmt.Errorf("invalid master fingerprint %q", fingerprint)
		}
	}
	return account{key: key, path: path, fingerprint: fingerprint}, nil
}

// checkKeyVersion accepts only mainnet xpub, ypub and zpub keys.
func checkKeyVersion(s string) error {
	raw := base58.Decode(s)
	if len(raw) < 4 {
		return fmt.Errorf("invalid extended key: too short")
	}
	version := raw[:4]
	for _, known := range [][]byte{versionXPub, versionYPub, versionZPub} {
		if bytes.Equal(version, known) {
			return nil
		}
	}
	return fmt.Errorf("%w: extended key version %x", ErrUnsupportedBatch, version)
}

// singleFrame is the state of an exporter that emits one plain frame.
type singleFrame struct {
	value string
}

func (s *singleFrame) nextPart() string { return s.value }

func (s *singleFrame) singleForm() (string, error) {
	if s.value == "" {
		return "", ErrNotCreated
	}
	return s.value, nil
}

func (s *singleFrame) partCount() int {
	if s.value == "" {
		return 0
	}
	return 1
}
