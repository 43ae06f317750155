package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ringmaster-dev/ringmaster/internal/logging"
)

// NATSMirrorConfig configures the optional JetStream durability mirror.
type NATSMirrorConfig struct {
	URL        string
	StreamName string
	Timeout    time.Duration
}

// NATSMirror publishes a copy of every Bus event to a JetStream subject
// so an external collaborator (a WebSocket fan-out service, say) can
// subscribe without being in-process. It is never on the critical path:
// a connection failure only logs a warning, it never blocks Publish.
type NATSMirror struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	stream string
	log    *logging.Logger
}

// NewNATSMirror connects to NATS and ensures cfg.StreamName exists.
func NewNATSMirror(cfg NATSMirrorConfig) (*NATSMirror, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "RINGMASTER"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("eventbus: jetstream: %w", err)
	}

	if _, err := js.StreamInfo(cfg.StreamName); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     cfg.StreamName,
			Subjects: []string{cfg.StreamName + ".>"},
		}); err != nil {
			nc.Close()
			return nil, fmt.Errorf("eventbus: create stream: %w", err)
		}
	}

	return &NATSMirror{conn: nc, js: js, stream: cfg.StreamName, log: logging.For("eventbus-nats")}, nil
}

// Forward publishes evt under <stream>.<project>.<type>. Its signature
// fits Bus.Mirror; cmd/ringmasterd calls it for each event read from a
// Bus subscription.
func (m *NATSMirror) Forward(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		m.log.Warn("marshal event %s: %v", evt.Type, err)
		return
	}
	subject := fmt.Sprintf("%s.%s.%s", m.stream, evt.ProjectID, evt.Type)
	if _, err := m.js.Publish(subject, data); err != nil {
		m.log.Warn("publish event %s: %v", evt.Type, err)
	}
}

// Close closes the underlying NATS connection.
func (m *NATSMirror) Close() {
	m.conn.Close()
}
