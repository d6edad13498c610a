// Package generator turns message batches into QR frames and deep links.
package generator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mbocsi/airlink/proto"
)

var (
	ErrNotCreated       = errors.New("generator has no frames")
	ErrUnsupportedBatch = errors.New("batch not supported by generator")
)

// Generator encodes a batch into frames. Create replaces all prior state.
type Generator interface {
	Name() string
	// CanHandle gates the single-purpose exporters; callers check it before
	// offering a format.
	CanHandle(batch proto.Batch) bool
	Create(batch proto.Batch, maxMultiFrameSize, maxSingleFrameSize int) error
	// NextPart cycles through the frames indefinitely.
	NextPart() string
	SingleForm(prefix string) (string, error)
	PartCount() int
}

// Names lists the available generators in preference order.
var Names = []string{"ur", "bcur", "legacy", "xpub", "descriptor", "metamask"}

// New returns the generator registered under name.
func New(name string, reg *proto.Registry) (Generator, error) {
	switch strings.ToLower(name) {
	case "ur":
		return NewURGenerator(), nil
	case "bcur":
		return NewBCURGenerator(reg), nil
	case "legacy":
		return NewLegacyGenerator(), nil
	case "xpub":
		return NewXPubGenerator(reg), nil
	case "descriptor":
		return NewDescriptorGenerator(reg), nil
	case "metamask":
		return NewMetaMaskGenerator(reg), nil
	}
	return nil, fmt.Errorf("unknown generator %q", name)
}

func checkSizes(maxMulti, maxSingle int) error {
	if maxMulti < 1 || maxSingle < 1 {
		return fmt.Errorf("invalid frame sizes %d/%d", maxMulti, maxSingle)
	}
	return nil
}

// link wraps payload as prefix://?param=payload. An empty prefix returns the
// payload as is.
func link(prefix, param, payload string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "://")
	if prefix == "" {
		return payload
	}
	return prefix + "://?" + param + "=" + url.QueryEscape(payload)
}
