package services

import (
	"fmt"
	"strings"

	"rsc.io/qr"
)

// quietZone is the blank border, in modules, required around a QR code.
const quietZone = 4

// RenderServiceImpl implements RenderService
type RenderServiceImpl struct {
	level qr.Level
}

// NewRenderService creates a new render service at error correction level L,
// which keeps dense animated frames scannable at small sizes.
func NewRenderService() RenderService {
	return &RenderServiceImpl{level: qr.L}
}

func (rs *RenderServiceImpl) encode(text string) (*qr.Code, error) {
	if text == "" {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Nothing to render"}
	}
	code, err := qr.Encode(text, rs.level)
	if err != nil {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Text does not fit a QR code", Cause: err}
	}
	return code, nil
}

// RenderSVG draws text as an SVG QR code with scale pixels per module.
func (rs *RenderServiceImpl) RenderSVG(text string, scale int) ([]byte, error) {
	code, err := rs.encode(text)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 4
	}

	dim := (code.Size + 2*quietZone) * scale
	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, dim, dim, dim, dim)
	fmt.Fprintf(&sb, `<rect width="%d" height="%d" fill="#fff"/><path fill="#000" d="`, dim, dim)
	for y := 0; y < code.Size; y++ {
		for x := 0; x < code.Size; x++ {
			if code.Black(x, y) {
				fmt.Fprintf(&sb, "M%d %dh%dv%dh-%dz", (x+quietZone)*scale, (y+quietZone)*scale, scale, scale, scale)
			}
		}
	}
	sb.WriteString(`"/></svg>`)
	return []byte(sb.String()), nil
}

func (rs *RenderServiceImpl) RenderPNG(text string) ([]byte, error) {
	code, err := rs.encode(text)
	if err != nil {
		return nil, err
	}
	return code.PNG(), nil
}
