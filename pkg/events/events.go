// Package events publishes gate changes to NATS subjects.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/nats-io/nats.go"

	"github.com/starryalley/gate_bridge/pkg/gate"
)

var lg = logger.NewPackageLogger("events", logger.InfoLevel)

// GateEvent is the JSON body of every published message.
type GateEvent struct {
	Open  bool      `json:"open"`
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// NATSPublisher publishes JSON-encoded gate events to one subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url with automatic reconnection.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("gate_bridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// Publish sends event to the publisher's subject.
func (p *NATSPublisher) Publish(event GateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(p.subject, data)
}

// GateChanged publishes the change. Failures are logged.
func (p *NATSPublisher) GateChanged(ctx context.Context, open bool, at time.Time) {
	state := gate.Text(open)
	if err := p.Publish(GateEvent{Open: open, State: state, At: at}); err != nil {
		lg.Errorf("Failed to publish gate event on %s: %v", p.subject, err)
		return
	}
	lg.Debugf("Published %s on %s", state, p.subject)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
