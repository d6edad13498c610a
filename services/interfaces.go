package services

import "github.com/mbocsi/airlink/proto"

// CodecService turns message batches into displayable frames
type CodecService interface {
	Formats() []FormatInfo
	// SupportedFormats lists the formats able to carry batch.
	SupportedFormats(batch proto.Batch) []string
	Encode(req EncodeRequest) (*EncodeResult, error)
}

// SessionService reassembles inbound frames into message batches
type SessionService interface {
	OpenSession() (*SessionInfo, error)
	GetSession(id string) (*SessionInfo, error)
	SubmitFrame(id string, req FrameRequest) (*SessionInfo, error)
	ResetSession(id string) error
	// RelaySession forwards the session's latest raw form to the relay.
	RelaySession(id string) error
	CloseSession(id string) error
	ListSessions() ([]SessionInfo, error)
}

// RenderService draws frames as QR codes
type RenderService interface {
	RenderSVG(text string, scale int) ([]byte, error)
	RenderPNG(text string) ([]byte, error)
}

// ProtocolService exposes the protocol capability registry
type ProtocolService interface {
	ListProtocols() ([]ProtocolInfo, error)
	GetProtocol(id string) (*ProtocolInfo, error)
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	Codec     CodecService
	Sessions  SessionService
	Render    RenderService
	Protocols ProtocolService
}
