package services

import (
	"github.com/mbocsi/airlink/proto"
)

// ProtocolServiceImpl implements ProtocolService
type ProtocolServiceImpl struct {
	registry *proto.Registry
}

// NewProtocolService creates a new protocol service
func NewProtocolService(registry *proto.Registry) ProtocolService {
	return &ProtocolServiceImpl{registry: registry}
}

func (ps *ProtocolServiceImpl) ListProtocols() ([]ProtocolInfo, error) {
	protocols := ps.registry.List()
	result := make([]ProtocolInfo, 0, len(protocols))
	for _, p := range protocols {
		result = append(result, convertProtocol(p, ps.formats(p)))
	}
	return result, nil
}

func (ps *ProtocolServiceImpl) GetProtocol(id string) (*ProtocolInfo, error) {
	p, ok := ps.registry.Lookup(id)
	if !ok {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Protocol not found: " + id,
		}
	}
	info := convertProtocol(p, ps.formats(p))
	return &info, nil
}

// formats lists the generators that can carry some message of p.
func (ps *ProtocolServiceImpl) formats(p proto.Protocol) []string {
	names := []string{"ur", "legacy"}
	if p.Has(proto.CapBitcoinPSBT) || p.Has(proto.CapEthereum) {
		names = append(names, "bcur")
	}
	if p.Has(proto.CapBitcoinPSBT) && p.Has(proto.CapExtendedKeys) {
		names = append(names, "xpub", "descriptor")
	}
	if p.Has(proto.CapEthereum) {
		names = append(names, "metamask")
	}
	return names
}
