package generator

import (
	"strings"

	"github.com/mbocsi/airlink/ur"
)

const minFragmentLen = 10

// fountainFrames holds the encoder for one UR, sized to prefer a single
// frame at maxSingle and fall back to animated frames at maxMulti.
type fountainFrames struct {
	ur      ur.UR
	encoder *ur.Encoder
}

func (f *fountainFrames) create(u ur.UR, maxMulti, maxSingle int) error {
	f.reset()
	enc, err := ur.NewEncoder(u, maxSingle, minFragmentLen)
	if err != nil {
		return err
	}
	if !enc.IsSinglePart() {
		if enc, err = ur.NewEncoder(u, maxMulti, minFragmentLen); err != nil {
			return err
		}
	}
	f.ur = u
	f.encoder = enc
	return nil
}

func (f *fountainFrames) reset() {
	f.ur = ur.UR{}
	f.encoder = nil
}

// nextPart never repeats a mixed frame; the fountain stream is rateless.
func (f *fountainFrames) nextPart() string {
	if f.encoder == nil {
		return ""
	}
	return strings.ToUpper(f.encoder.NextPart())
}

func (f *fountainFrames) singleForm(prefix string) (string, error) {
	if f.encoder == nil {
		return "", ErrNotCreated
	}
	return link(prefix, "ur", strings.ToUpper(ur.EncodeSingle(f.ur))), nil
}

func (f *fountainFrames) partCount() int {
	if f.encoder == nil {
		return 0
	}
	return f.encoder.SeqLen()
}
