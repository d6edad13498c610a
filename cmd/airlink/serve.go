package main

import (
	"log/slog"

	"github.com/mbocsi/airlink/mcp"
	"github.com/mbocsi/airlink/server"
	"github.com/mbocsi/airlink/services"
	"github.com/mbocsi/airlink/web"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	HTTPAddr  string
	RelayAddr string
	RelayURL  string
	MCP       bool
}

func newServeCmd(a *app) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and optionally a relay hub and the MCP server",
		Long: `Serve runs the decode-session API on http.addr. A relay hub starts when
relay.addr is set; sessions relay undecodable input to relay.url when it is set.
With --mcp the encode and decode tools are also served over stdio.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("http-addr") {
				a.cfg.HTTP.Addr = f.HTTPAddr
			}
			if cmd.Flags().Changed("relay-addr") {
				a.cfg.Relay.Addr = f.RelayAddr
			}
			if cmd.Flags().Changed("relay-url") {
				a.cfg.Relay.URL = f.RelayURL
			}
			if cmd.Flags().Changed("mcp") {
				a.cfg.MCP.Enabled = f.MCP
			}
			ctx := cmdContext(cmd)

			metrics := server.NewMetrics()
			sessions := server.NewSessionRegistry(a.cfg.Sessions.IdleTTL, metrics)
			srv := server.NewAirlinkServer(server.AirlinkServerOptions{
				Sessions: sessions,
				Context:  ctx,
			})

			if a.cfg.Relay.Addr != "" {
				srv.Register(newHub(a, a.cfg.Relay.Addr))
			}

			var relayer server.Relayer
			if a.cfg.Relay.URL != "" {
				rc, err := connectRelay(ctx, a)
				if err != nil {
					slog.Warn("Relay unavailable, sessions will not relay", "url", a.cfg.Relay.URL, "error", err.Error())
				} else {
					defer rc.Close()
					relayer = rc
				}
			}

			container := services.NewServiceManager(services.ServiceManagerOptions{
				Sessions: sessions,
				Relayer:  relayer,
				Frames: services.FrameDefaults{
					MaxMultiFrameSize:  a.cfg.Frames.MaxMultiFrameSize,
					MaxSingleFrameSize: a.cfg.Frames.MaxSingleFrameSize,
					Prefix:             a.cfg.Link.Scheme,
				},
			}).GetServices()

			srv.Register(web.NewAPIServer(web.APIServerOptions{
				Addr:      a.cfg.HTTP.Addr,
				Services:  container,
				Metrics:   metrics,
				RateLimit: a.cfg.HTTP.RateLimitRPS,
				Burst:     a.cfg.HTTP.RateLimitBurst,
			}))
			if a.cfg.MCP.Enabled {
				srv.Register(mcp.NewMCPServer(container, version))
			}
			return srv.Start()
		},
	}

	cmd.Flags().StringVar(&f.HTTPAddr, "http-addr", "", "HTTP API listen address (defaults to http.addr)")
	cmd.Flags().StringVar(&f.RelayAddr, "relay-addr", "", "also run a relay hub on this address")
	cmd.Flags().StringVar(&f.RelayURL, "relay-url", "", "relay hub that sessions forward undecodable input to")
	cmd.Flags().BoolVar(&f.MCP, "mcp", false, "serve MCP tools over stdio")
	return cmd
}
