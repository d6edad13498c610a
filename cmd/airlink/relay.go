package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbocsi/airlink/client"
	"github.com/mbocsi/airlink/server"
	"github.com/mbocsi/airlink/transport"
	"github.com/spf13/cobra"
)

type relayFlags struct {
	Addr     string
	URL      string
	Channel  string
	Announce bool
}

func newRelayCmd(a *app) *cobra.Command {
	var f relayFlags

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Run or talk to a relay hub",
	}
	relayCmd.PersistentFlags().StringVar(&f.URL, "url", "", "hub address (defaults to relay.url, then mDNS discovery)")
	relayCmd.PersistentFlags().StringVar(&f.Channel, "channel", "", "relay channel (defaults to relay.channel)")

	// applyFlags merges set flags into the loaded config.
	applyFlags := func(cmd *cobra.Command) {
		if cmd.Flags().Changed("url") {
			a.cfg.Relay.URL = f.URL
		}
		if cmd.Flags().Changed("channel") {
			a.cfg.Relay.Channel = f.Channel
		}
		if cmd.Flags().Changed("addr") {
			a.cfg.Relay.Addr = f.Addr
		}
		if cmd.Flags().Changed("announce") {
			a.cfg.Relay.Announce = f.Announce
		}
	}

	hubCmd := &cobra.Command{
		Use:   "hub",
		Short: "Run a relay hub until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlags(cmd)
			addr := a.cfg.Relay.Addr
			if addr == "" {
				addr = ":8765"
			}
			hub := newHub(a, addr)
			srv := server.NewAirlinkServer(server.AirlinkServerOptions{Context: cmd.Context()})
			srv.Register(hub)
			return srv.Start()
		},
	}
	hubCmd.Flags().StringVar(&f.Addr, "addr", "", "listen address (defaults to relay.addr or :8765)")
	hubCmd.Flags().BoolVar(&f.Announce, "announce", false, "advertise the hub over mDNS")

	sendCmd := &cobra.Command{
		Use:   "send <raw>",
		Short: "Relay a raw string to the other peers on the channel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlags(cmd)
			ctx := cmdContext(cmd)
			rc, err := connectRelay(ctx, a)
			if err != nil {
				return err
			}
			defer rc.Close()
			return rc.Relay(ctx, strings.Join(args, " "))
		},
	}

	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Print every string relayed on the channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlags(cmd)
			ctx := cmdContext(cmd)
			rc, err := connectRelay(ctx, a)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rc.OnFrame(func(frame transport.Frame) {
				fmt.Fprintln(out, frame.Data)
			})
			return rc.Listen(ctx)
		},
	}

	relayCmd.AddCommand(hubCmd, sendCmd, listenCmd)
	return relayCmd
}

func newHub(a *app, addr string) *transport.Hub {
	hub := transport.NewHub(addr)
	hub.SetMaxClients(a.cfg.Relay.MaxClients)
	if a.cfg.Relay.Announce {
		hub.Announce("airlink")
	}
	return hub
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var _ server.Relayer = (*client.RelayClient)(nil)
