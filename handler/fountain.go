package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/ur"
)

// fountainSession wraps a UR decoder with duplicate suppression and the
// abandon-and-restart rule shared by the UR based handlers.
type fountainSession struct {
	decoder  *ur.Decoder
	seen     map[string]struct{}
	progress float64
}

func newFountainSession() *fountainSession {
	s := &fountainSession{}
	s.reset()
	return s
}

func (s *fountainSession) reset() {
	s.decoder = ur.NewDecoder()
	s.seen = make(map[string]struct{})
	s.progress = 0
}

func (s *fountainSession) receive(frame string) (proto.Outcome, error) {
	if _, ok := s.seen[frame]; ok {
		if s.decoder.IsComplete() {
			return proto.Success(), nil
		}
		return proto.Partial(s.progress), nil
	}

	err := s.decoder.Receive(frame)
	if errors.Is(err, ur.ErrDifferentMessage) && s.decoder.Started() {
		// A new code was started mid-scan; drop the old one. Mixed parts
		// leave progress at zero, so any accepted frame counts.
		s.reset()
		err = s.decoder.Receive(frame)
	}
	if err != nil {
		return proto.Unsupported(), fmt.Errorf("ur frame: %w", err)
	}

	s.seen[frame] = struct{}{}
	if p := s.decoder.Progress(); p > s.progress {
		s.progress = p
	}
	if s.decoder.IsComplete() {
		return proto.Success(), nil
	}
	return proto.Partial(s.progress), nil
}

func (s *fountainSession) result() (ur.UR, error) {
	if !s.decoder.IsComplete() {
		return ur.UR{}, ErrNoResult
	}
	return s.decoder.Result()
}

func (s *fountainSession) singleForm() (string, bool) {
	u, err := s.result()
	if err != nil {
		return "", false
	}
	return strings.ToUpper(ur.EncodeSingle(u)), true
}
