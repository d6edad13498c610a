// Package web serves the exchange services as a JSON API.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbocsi/airlink/server"
	"github.com/mbocsi/airlink/services"
)

type APIServerOptions struct {
	Addr     string
	Services *services.ServiceContainer
	Metrics  *server.Metrics // Optional (/metrics answers 404 when nil)
	// RateLimit is requests per second per client address. Optional
	// (defaults to unlimited)
	RateLimit float64
	Burst     int // Optional (defaults to twice RateLimit)
}

// APIServer exposes sessions, encoding, rendering and protocols over HTTP.
type APIServer struct {
	addr     string
	services *services.ServiceContainer
	metrics  *server.Metrics
	limiter  *ipLimiter
	server   *http.Server
}

func NewAPIServer(opts APIServerOptions) *APIServer {
	burst := opts.Burst
	if burst <= 0 {
		burst = int(2 * opts.RateLimit)
	}
	s := &APIServer{
		addr:     opts.Addr,
		services: opts.Services,
		metrics:  opts.Metrics,
		limiter:  newIPLimiter(opts.RateLimit, burst),
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *APIServer) Name() string { return "http" }

// Routes returns the HTTP routes for the API
func (s *APIServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.middleware)

		r.Get("/formats", s.HandleFormats)
		r.Post("/encode", s.HandleEncode)
		r.Get("/protocols", s.HandleProtocols)
		r.Get("/protocols/{id}", s.HandleProtocolDetail)
		r.Get("/qr.svg", s.HandleQRSVG)
		r.Get("/qr.png", s.HandleQRPNG)

		r.Post("/sessions", s.HandleOpenSession)
		r.Get("/sessions", s.HandleSessions)
		r.Get("/sessions/{id}", s.HandleSessionDetail)
		r.Delete("/sessions/{id}", s.HandleCloseSession)
		r.Post("/sessions/{id}/frames", s.HandleSubmitFrame)
		r.Post("/sessions/{id}/reset", s.HandleResetSession)
		r.Post("/sessions/{id}/relay", s.HandleRelaySession)
	})
	return r
}

func (s *APIServer) Start() error {
	slog.Info("Starting HTTP API", "addr", s.addr)
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	err = s.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown() error {
	slog.Info("Shutting down HTTP API", "addr", s.addr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
