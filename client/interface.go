package client

import (
	"context"

	"github.com/mbocsi/airlink/transport"
)

type Transport interface {
	Connect(ctx context.Context, addr string) error
	Send(frame transport.Frame) error
	Read() (transport.Frame, error) // for one-at-a-time processing
	Close() error
}
