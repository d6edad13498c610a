package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Service is a long-running surface (HTTP API, relay hub, MCP) started and
// stopped with the server.
type Service interface {
	Name() string
	Start() error
	Shutdown() error
}

type AirlinkServerOptions struct {
	Services      []Service
	Sessions      *SessionRegistry // Optional, eviction runs when set
	EvictInterval time.Duration    // Optional (defaults to one minute)
	Context       context.Context  // Optional (defaults to context.Background())
}

type AirlinkServer struct {
	options AirlinkServerOptions
}

func NewAirlinkServer(opts AirlinkServerOptions) *AirlinkServer {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.EvictInterval <= 0 {
		opts.EvictInterval = time.Minute
	}
	return &AirlinkServer{options: opts}
}

func (s *AirlinkServer) Register(svc Service) {
	s.options.Services = append(s.options.Services, svc)
}

// Start runs every service until SIGINT/SIGTERM or the options context ends,
// then shuts them down in reverse order.
func (s *AirlinkServer) Start() error {
	ctx, stop := signal.NotifyContext(s.options.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

func (s *AirlinkServer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, svc := range s.options.Services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			slog.Info("Starting service", "service", svc.Name())
			if err := svc.Start(); err != nil {
				slog.Error("Service stopped with error", "service", svc.Name(), "error", err.Error())
			}
		}(svc)
	}
	if s.options.Sessions != nil {
		go s.options.Sessions.Run(ctx, s.options.EvictInterval)
	}

	<-ctx.Done()
	slog.Info("Shutting down services")

	for i := len(s.options.Services) - 1; i >= 0; i-- {
		svc := s.options.Services[i]
		if err := svc.Shutdown(); err != nil {
			slog.Error("There was an error when shutting down service", "service", svc.Name(), "error", err.Error())
		}
	}
	wg.Wait()
	return nil
}
