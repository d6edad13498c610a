package services

import (
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/server"
)

// ServiceManagerImpl wires the services around one protocol registry and
// session registry
type ServiceManagerImpl struct {
	registry *proto.Registry
	sessions *server.SessionRegistry

	services *ServiceContainer
}

type ServiceManagerOptions struct {
	Registry     *proto.Registry                   // Optional (defaults to proto.DefaultRegistry())
	Sessions     *server.SessionRegistry           // Optional (defaults to a registry without eviction)
	KindHandlers map[proto.Kind]server.KindHandler // Optional (defaults to LogKindHandlers())
	Relayer      server.Relayer                    // Optional
	Frames       FrameDefaults
}

// NewServiceManager creates a new service manager
func NewServiceManager(opts ServiceManagerOptions) *ServiceManagerImpl {
	if opts.Registry == nil {
		opts.Registry = proto.DefaultRegistry()
	}
	if opts.Sessions == nil {
		opts.Sessions = server.NewSessionRegistry(0, nil)
	}
	if opts.KindHandlers == nil {
		opts.KindHandlers = LogKindHandlers()
	}

	sm := &ServiceManagerImpl{
		registry: opts.Registry,
		sessions: opts.Sessions,
	}
	sm.services = &ServiceContainer{
		Codec:     NewCodecService(opts.Registry, opts.Frames),
		Sessions:  NewSessionService(opts.Sessions, opts.Registry, opts.KindHandlers, opts.Relayer),
		Render:    NewRenderService(),
		Protocols: NewProtocolService(opts.Registry),
	}
	return sm
}

// GetServices returns the service container
func (sm *ServiceManagerImpl) GetServices() *ServiceContainer {
	return sm.services
}

func (sm *ServiceManagerImpl) Sessions() *server.SessionRegistry {
	return sm.sessions
}
