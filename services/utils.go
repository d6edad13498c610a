package services

import (
	"strings"

	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/server"
)

// sessionInfo snapshots a session for the service layer. The pending alert
// is consumed by the read.
func sessionInfo(s *server.Session) SessionInfo {
	info := SessionInfo{
		ID:      s.ID,
		Created: s.Created,
		Outcome: s.Outcome(),
	}
	if recorder, ok := s.Dispatcher().Data().(*alertRecorder); ok {
		info.Alert, info.Raw = recorder.take()
	}
	if env, ok := s.Dispatcher().Last(); ok {
		info.Messages = env.Batch
		if info.Raw == "" {
			info.Raw = env.RawSingleForm
		}
	}
	return info
}

// convertProtocol converts a registry entry to ProtocolInfo
func convertProtocol(p proto.Protocol, formats []string) ProtocolInfo {
	var caps []string
	if s := p.Caps.String(); s != "" {
		caps = strings.Split(s, "|")
	}
	return ProtocolInfo{
		ID:             p.ID,
		Name:           p.Name,
		CoinType:       p.CoinType,
		Capabilities:   caps,
		DerivationPath: p.DerivationPath,
		Formats:        formats,
	}
}
