package services

import (
	"log/slog"

	"github.com/mbocsi/airlink/generator"
	"github.com/mbocsi/airlink/proto"
)

var formatDescriptions = map[string]FormatInfo{
	"ur":         {Name: "ur", Description: "Native message batch as animated Uniform Resource frames"},
	"bcur":       {Name: "bcur", Description: "Interoperable BC-UR (crypto-psbt, eth-sign-request, eth-signature, crypto-hdkey)"},
	"legacy":     {Name: "legacy", Description: "Version 2 base58 chunked pages for older peers"},
	"xpub":       {Name: "xpub", Description: "Bare extended public key in SLIP-0132 form", ExportOnly: true},
	"descriptor": {Name: "descriptor", Description: "Output descriptor with key origin and checksum", ExportOnly: true},
	"metamask":   {Name: "metamask", Description: "MetaMask-compatible account and signature export", ExportOnly: true},
}

// FrameDefaults are the sizes used when a request leaves them unset.
type FrameDefaults struct {
	MaxMultiFrameSize  int
	MaxSingleFrameSize int
	Prefix             string
}

// CodecServiceImpl implements CodecService
type CodecServiceImpl struct {
	registry *proto.Registry
	defaults FrameDefaults
}

// NewCodecService creates a new codec service
func NewCodecService(registry *proto.Registry, defaults FrameDefaults) CodecService {
	if defaults.MaxMultiFrameSize <= 0 {
		defaults.MaxMultiFrameSize = 250
	}
	if defaults.MaxSingleFrameSize <= 0 {
		defaults.MaxSingleFrameSize = 1000
	}
	return &CodecServiceImpl{registry: registry, defaults: defaults}
}

func (cs *CodecServiceImpl) Formats() []FormatInfo {
	formats := make([]FormatInfo, 0, len(generator.Names))
	for _, name := range generator.Names {
		formats = append(formats, formatDescriptions[name])
	}
	return formats
}

func (cs *CodecServiceImpl) SupportedFormats(batch proto.Batch) []string {
	var names []string
	for _, name := range generator.Names {
		gen, err := generator.New(name, cs.registry)
		if err != nil {
			continue
		}
		if gen.CanHandle(batch) {
			names = append(names, name)
		}
	}
	return names
}

func (cs *CodecServiceImpl) Encode(req EncodeRequest) (*EncodeResult, error) {
	if len(req.Messages) == 0 {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "No messages to encode"}
	}
	if req.Format == "" {
		req.Format = "ur"
	}
	gen, err := generator.New(req.Format, cs.registry)
	if err != nil {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Unknown format: " + req.Format}
	}
	if !gen.CanHandle(req.Messages) {
		return nil, ServiceError{Code: ErrCodeUnsupported, Message: "Format " + req.Format + " cannot carry these messages"}
	}

	maxMulti := orDefault(req.MaxMultiFrameSize, cs.defaults.MaxMultiFrameSize)
	maxSingle := orDefault(req.MaxSingleFrameSize, cs.defaults.MaxSingleFrameSize)
	if err := gen.Create(req.Messages, maxMulti, maxSingle); err != nil {
		return nil, ServiceError{Code: ErrCodeInvalidInput, Message: "Could not encode messages", Cause: err}
	}

	count := gen.PartCount()
	parts := req.Parts
	if parts <= 0 {
		parts = count
	}
	frames := make([]string, parts)
	for i := range frames {
		frames[i] = gen.NextPart()
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = cs.defaults.Prefix
	}
	single, err := gen.SingleForm(prefix)
	if err != nil {
		slog.Debug("No single form for batch", "format", req.Format, "error", err.Error())
		single = ""
	}

	slog.Debug("Encoded messages", "format", req.Format, "messages", len(req.Messages), "parts", count)
	return &EncodeResult{
		Format:     gen.Name(),
		PartCount:  count,
		Frames:     frames,
		SingleForm: single,
	}, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
