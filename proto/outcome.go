package proto

import "fmt"

// Status is the tri-state result of offering a frame to a decoder.
type Status int

const (
	// StatusUnsupported means the frame is not in this decoder's format.
	StatusUnsupported Status = iota
	// StatusPartial means more frames are needed.
	StatusPartial
	// StatusSuccess means a complete payload was decoded.
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusPartial:
		return "partial"
	case StatusSuccess:
		return "success"
	default:
		return "unsupported"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "partial":
		*s = StatusPartial
	case "success":
		*s = StatusSuccess
	case "unsupported":
		*s = StatusUnsupported
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Outcome pairs a Status with progress in [0,1], meaningful for StatusPartial.
type Outcome struct {
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
}

func Success() Outcome {
	return Outcome{Status: StatusSuccess, Progress: 1}
}

func Partial(progress float64) Outcome {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return Outcome{Status: StatusPartial, Progress: progress}
}

func Unsupported() Outcome {
	return Outcome{Status: StatusUnsupported}
}
