// Package client connects to a relay hub so a raw frame that could not be
// handled locally can be handed to the paired application.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/airlink/transport"
)

var ErrNotConnected = errors.New("relay client is not connected")

type RelayClient struct {
	Id        string
	Connected bool
	transport Transport

	// Frames relayed by peers
	handlerMu sync.RWMutex
	onFrame   func(transport.Frame)

	mu sync.Mutex
}

func NewRelayClient(t Transport) *RelayClient {
	return &RelayClient{transport: t}
}

// Start dials the hub and waits for its welcome frame.
func (c *RelayClient) Start(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transport.Connect(ctx, addr); err != nil {
		return err
	}

	welcome := make(chan transport.Frame, 1)
	errCh := make(chan error, 1)
	go func() {
		for {
			frame, err := c.transport.Read()
			if err != nil {
				errCh <- err
				return
			}
			if frame.Type == transport.FrameWelcome {
				welcome <- frame
				return
			}
			slog.Warn("Received a frame other than welcome", "type", frame.Type)
		}
	}()

	select {
	case frame := <-welcome:
		c.Id = frame.Sender
		c.Connected = true
		slog.Info("Connected to relay hub", "addr", addr, "id", c.Id)
		return nil
	case err := <-errCh:
		c.transport.Close()
		return fmt.Errorf("relay handshake: %w", err)
	case <-time.After(5 * time.Second):
		c.transport.Close()
		return fmt.Errorf("timeout waiting for welcome")
	case <-ctx.Done():
		c.transport.Close()
		return ctx.Err()
	}
}

// OnFrame sets the callback Listen hands relayed frames to.
func (c *RelayClient) OnFrame(fn func(transport.Frame)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onFrame = fn
}

// Relay sends raw to every other peer on the channel.
func (c *RelayClient) Relay(ctx context.Context, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Connected {
		return ErrNotConnected
	}
	return c.transport.Send(transport.NewRelayFrame(raw))
}

// Listen reads frames until the connection closes or ctx is done.
func (c *RelayClient) Listen(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		frame, err := c.transport.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		slog.Debug("Frame received", "type", frame.Type, "sender", frame.Sender, "size", len(frame.Data))

		switch frame.Type {
		case transport.FrameRelay:
			c.handlerMu.RLock()
			handler := c.onFrame
			c.handlerMu.RUnlock()
			if handler != nil {
				handler(frame)
			}
		case transport.FrameError:
			slog.Warn("Relay hub reported an error", "error", frame.Data)
		default:
			slog.Warn("Unhandled frame", "type", frame.Type)
		}
	}
}

func (c *RelayClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Connected {
		return nil
	}
	c.Connected = false
	return c.transport.Close()
}
