package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher republishes every Event to a NATS subject, so other
// processes on the flight-sim host (a heads-up-display overlay, a
// logging sidecar) can subscribe without coupling to the websocket
// wire format. It is an optional Publisher passed to NewHub.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NATSPublisherConfig configures the connection used by NewNATSPublisher.
type NATSPublisherConfig struct {
	URL           string
	Subject       string
	ClientName    string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultNATSPublisherConfig returns sane defaults for a local NATS
// server running alongside the supervisor.
func DefaultNATSPublisherConfig() NATSPublisherConfig {
	return NATSPublisherConfig{
		URL:           nats.DefaultURL,
		Subject:       "cfi.events",
		ClientName:    "cfi-supervisor",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSPublisher connects to cfg.URL and returns a Publisher
// forwarding events to cfg.Subject. The connection is closed by Close.
func NewNATSPublisher(cfg NATSPublisherConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg = DefaultNATSPublisherConfig()
	}
	if cfg.Subject == "" {
		cfg.Subject = "cfi.events"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to NATS at %s: %w", cfg.URL, err)
	}

	return &NATSPublisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event for NATS: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("eventbus: publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close drains and closes the underlying NATS connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
