package generator

import (
	"fmt"
	"strings"

	"github.com/mbocsi/airlink/proto"
)

// DescriptorGenerator exports a Bitcoin account as an output descriptor for
// its receive chain, e.g. wpkh([73c5da0a/84h/0h/0h]xpub.../0/*)#checksum.
type DescriptorGenerator struct {
	registry *proto.Registry
	frame    singleFrame
}

func NewDescriptorGenerator(reg *proto.Registry) *DescriptorGenerator {
	return &DescriptorGenerator{registry: reg}
}

func (g *DescriptorGenerator) Name() string { return "descriptor" }

func (g *DescriptorGenerator) CanHandle(batch proto.Batch) bool {
	_, err := bitcoinAccount(batch, g.registry)
	return err == nil
}

func (g *DescriptorGenerator) Create(batch proto.Batch, maxMulti, maxSingle int) error {
	g.frame = singleFrame{}
	acct, err := bitcoinAccount(batch, g.registry)
	if err != nil {
		return err
	}
	desc, err := descriptor(acct)
	if err != nil {
		return err
	}
	g.frame.value = desc
	return nil
}

func (g *DescriptorGenerator) NextPart() string { return g.frame.nextPart() }

func (g *DescriptorGenerator) SingleForm(string) (string, error) {
	return g.frame.singleForm()
}

func (g *DescriptorGenerator) PartCount() int { return g.frame.partCount() }

func descriptor(acct account) (string, error) {
	key := acct.key.String()
	if acct.fingerprint != "" {
		origin := acct.fingerprint
		if len(acct.path) > 0 {
			origin += "/" + proto.FormatPath(acct.path, "h", false)
		}
		key = "[" + strings.ToLower(origin) + "]" + key
	}
	key += "/0/*"

	var body string
	switch acct.purpose() {
	case purposeSegwit:
		body = "wpkh(" + key + ")"
	case purposeNestedSegwit:
		body = "sh(wpkh(" + key + "))"
	case purposeLegacy, 0:
		body = "pkh(" + key + ")"
	default:
		return "", fmt.Errorf("%w: unknown purpose %d", ErrUnsupportedBatch, acct.purpose()&^proto.HardenedOffset)
	}

	sum, err := descriptorChecksum(body)
	if err != nil {
		return "", err
	}
	return body + "#" + sum, nil
}

const (
	descInputCharset    = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	descChecksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

var descGenerators = [5]uint64{0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd}

func descPolymod(c, val uint64) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ val
	for i, g := range descGenerators {
		if (c0>>i)&1 == 1 {
			c ^= g
		}
	}
	return c
}

// descriptorChecksum computes the BIP-380 descriptor checksum.
func descriptorChecksum(desc string) (string, error) {
	c := uint64(1)
	cls, count := uint64(0), 0
	for _, ch := range desc {
		pos := strings.IndexRune(descInputCharset, ch)
		if pos < 0 {
			return "", fmt.Errorf("invalid descriptor character %q", ch)
		}
		c = descPolymod(c, uint64(pos)&31)
		cls = cls*3 + uint64(pos)>>5
		count++
		if count == 3 {
			c = descPolymod(c, cls)
			cls, count = 0, 0
		}
	}
	if count > 0 {
		c = descPolymod(c, cls)
	}
	for i := 0; i < 8; i++ {
		c = descPolymod(c, 0)
	}
	c ^= 1

	out := make([]byte, 8)
	for j := range out {
		out[j] = descChecksumCharset[(c>>(5*(7-uint(j))))&31]
	}
	return string(out), nil
}
