package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events to a NATS server. It reconnects forever in
// the background; publishes made while disconnected are buffered by the
// client library.
type NATSPublisher struct {
	nc  *nats.Conn
	url string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url string, log logr.Logger) (*NATSPublisher, error) {
	log = log.WithName("nats")
	opts := []nats.Option{
		nats.Name("rcloud"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Info("disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, url: url}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, subject string, payload []byte) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	return p.nc.Publish(subject, payload)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}
