package generator

import (
	"github.com/mbocsi/airlink/proto"
)

// XPubGenerator exports a Bitcoin account as a bare extended public key,
// using the SLIP-0132 prefix that matches the account's purpose.
type XPubGenerator struct {
	registry *proto.Registry
	frame    singleFrame
}

func NewXPubGenerator(reg *proto.Registry) *XPubGenerator {
	return &XPubGenerator{registry: reg}
}

func (g *XPubGenerator) Name() string { return "xpub" }

func (g *XPubGenerator) CanHandle(batch proto.Batch) bool {
	_, err := bitcoinAccount(batch, g.registry)
	return err == nil
}

func (g *XPubGenerator) Create(batch proto.Batch, maxMulti, maxSingle int) error {
	g.frame = singleFrame{}
	acct, err := bitcoinAccount(batch, g.registry)
	if err != nil {
		return err
	}

	version := versionXPub
	switch acct.purpose() {
	case purposeSegwit:
		version = versionZPub
	case purposeNestedSegwit:
		version = versionYPub
	}
	key, err := acct.key.CloneWithVersion(version)
	if err != nil {
		return err
	}
	g.frame.value = key.String()
	return nil
}

func (g *XPubGenerator) NextPart() string { return g.frame.nextPart() }

// SingleForm is the bare key; wallets import it as plain text.
func (g *XPubGenerator) SingleForm(string) (string, error) {
	return g.frame.singleForm()
}

func (g *XPubGenerator) PartCount() int { return g.frame.partCount() }
