package services

import (
	"time"

	"github.com/mbocsi/airlink/proto"
)

// FormatInfo describes one output format.
type FormatInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ExportOnly  bool   `json:"export_only"`
}

// EncodeRequest asks for frames of messages in one format.
type EncodeRequest struct {
	Format             string      `json:"format"`
	Messages           proto.Batch `json:"messages"`
	MaxMultiFrameSize  int         `json:"max_multi_frame_size,omitempty"`
	MaxSingleFrameSize int         `json:"max_single_frame_size,omitempty"`
	// Prefix wraps the single form as a deep link when set.
	Prefix string `json:"prefix,omitempty"`
	// Parts is how many frames to return; zero means one full cycle.
	Parts int `json:"parts,omitempty"`
}

type EncodeResult struct {
	Format     string   `json:"format"`
	PartCount  int      `json:"part_count"`
	Frames     []string `json:"frames"`
	SingleForm string   `json:"single_form,omitempty"`
}

// SessionInfo is the externally visible state of a decode session.
type SessionInfo struct {
	ID       string        `json:"id"`
	Created  time.Time     `json:"created"`
	Outcome  proto.Outcome `json:"outcome"`
	Alert    string        `json:"alert,omitempty"`
	Messages proto.Batch   `json:"messages,omitempty"`
	Raw      string        `json:"raw,omitempty"`
}

// FrameRequest submits one scanned or pasted string to a session.
type FrameRequest struct {
	Frame     string `json:"frame"`
	Transport string `json:"transport,omitempty"`
}

// ProtocolInfo summarizes a registered protocol.
type ProtocolInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	CoinType       uint32   `json:"coin_type"`
	Capabilities   []string `json:"capabilities"`
	DerivationPath string   `json:"derivation_path,omitempty"`
	Formats        []string `json:"formats"`
}

// Alerts raised to a session's owner.
const (
	AlertUnknownMessage  = "unknown_message"
	AlertUnsupportedType = "unsupported_type"
	AlertScanAgain       = "scan_again"
)

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnsupported  = "UNSUPPORTED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
