package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mbocsi/airlink/client"
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/server"
	"github.com/spf13/cobra"
)

type decodeFlags struct {
	Transport string
	Relay     bool
}

// decodePrompter prints alerts for the person feeding frames and remembers
// raw strings nothing could decode.
type decodePrompter struct {
	w       io.Writer
	log     server.LogPrompter
	mu      sync.Mutex
	unknown []proto.Envelope
}

func (p *decodePrompter) UnknownMessage(ctx context.Context, env proto.Envelope) {
	p.mu.Lock()
	p.unknown = append(p.unknown, env)
	p.mu.Unlock()
	fmt.Fprintf(p.w, "unknown message: %s\n", truncate(env.RawSingleForm, 64))
	p.log.UnknownMessage(ctx, env)
}

func (p *decodePrompter) UnsupportedType(ctx context.Context, env proto.Envelope) {
	fmt.Fprintf(p.w, "unsupported message type in batch of %d\n", len(env.Batch))
	p.log.UnsupportedType(ctx, env)
}

func (p *decodePrompter) ScanAgain(ctx context.Context, progress float64) {
	fmt.Fprintf(p.w, "need more frames (%.0f%%)\n", progress*100)
}

func (p *decodePrompter) takeUnknown() []proto.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	unknown := p.unknown
	p.unknown = nil
	return unknown
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newDecodeCmd(a *app) *cobra.Command {
	var f decodeFlags

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode frames or deep links read line by line from stdin",
		Long: `Decode feeds each input line to the frame handlers and prints every
completed message batch as JSON.

Examples:
  airlink decode < frames.txt
  airlink decode --transport paste --relay < pasted.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			transport, err := proto.ParseTransportKind(f.Transport)
			if err != nil {
				return err
			}

			var relayer server.Relayer
			if f.Relay {
				rc, err := connectRelay(ctx, a)
				if err != nil {
					return err
				}
				defer rc.Close()
				relayer = rc
			}

			out := cmd.OutOrStdout()
			prompter := &decodePrompter{w: cmd.ErrOrStderr()}
			var outMu sync.Mutex
			dispatcher := server.NewDispatcher(server.DispatcherOptions{
				Prompter: prompter,
				Relayer:  relayer,
			})
			for _, kind := range proto.Kinds {
				dispatcher.Router().Register(kind, func(ctx context.Context, msgs []proto.Message) error {
					outMu.Lock()
					defer outMu.Unlock()
					return json.NewEncoder(out).Encode(msgs)
				})
			}

			decoded, err := decodeLines(ctx, cmd.InOrStdin(), dispatcher, transport, prompter)
			dispatcher.Router().Wait()
			if err != nil {
				return err
			}
			slog.Debug("Decode finished", "batches", decoded)
			if decoded == 0 {
				return fmt.Errorf("no complete payload in input")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.Transport, "transport", "qr", "how the input arrived: qr|deeplink|paste")
	cmd.Flags().BoolVar(&f.Relay, "relay", false, "relay undecodable input to the hub at relay.url")
	return cmd
}

// decodeLines hands each non-empty line to dispatcher and relays whatever
// could not be decoded. It returns the number of payloads that completed.
func decodeLines(ctx context.Context, r io.Reader, dispatcher *server.Dispatcher, transport proto.TransportKind, prompter *decodePrompter) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	decoded := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return decoded, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if dispatcher.Handle(ctx, line, transport).Status == proto.StatusSuccess {
			decoded++
		}
		for _, env := range prompter.takeUnknown() {
			switch err := dispatcher.Relay(ctx, env); err {
			case nil:
				slog.Info("Relayed unknown input", "length", len(env.RawSingleForm))
			case server.ErrNoRelay:
			default:
				slog.Warn("Could not relay unknown input", "error", err.Error())
			}
		}
	}
	return decoded, scanner.Err()
}

// connectRelay dials relay.url, or the first hub found over mDNS when it is
// unset.
func connectRelay(ctx context.Context, a *app) (*client.RelayClient, error) {
	url := a.cfg.Relay.URL
	if url == "" {
		found, err := client.DiscoverRelay(3 * time.Second)
		if err != nil {
			return nil, fmt.Errorf("no relay.url set and none discovered: %w", err)
		}
		url = found.URL()
	}
	rc := client.NewRelayClient(client.NewWebSocketTransport(a.cfg.Relay.Channel))
	if err := rc.Start(ctx, url); err != nil {
		return nil, err
	}
	return rc, nil
}
