package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// natsPublisher is the subset of *nats.Conn used by NATSForwarder.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder republishes bus events to NATS subjects of the form
// <prefix>.<event type>, e.g. "scriptgen.tasks.task.completed".
type NATSForwarder struct {
	conn   natsPublisher
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// ConnectNATS dials url and returns a forwarder. Call Close when done.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATSForwarder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("scriptgend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("err", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	f := newNATSForwarder(nc, prefix, logger)
	f.nc = nc
	return f, nil
}

func newNATSForwarder(conn natsPublisher, prefix string, logger *slog.Logger) *NATSForwarder {
	if prefix == "" {
		prefix = "scriptgen.tasks"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSForwarder{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the NATS subject for an event type.
func (f *NATSForwarder) Subject(t Type) string {
	return f.prefix + "." + string(t)
}

// Handle publishes ev to NATS. It has the Handler signature so it can be
// subscribed to a Bus directly.
func (f *NATSForwarder) Handle(_ context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := f.conn.Publish(f.Subject(ev.Type), data); err != nil {
		f.logger.Warn("forward event to nats failed",
			slog.String("task_id", ev.TaskID),
			slog.String("type", string(ev.Type)),
			slog.Any("err", err))
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (f *NATSForwarder) Close() error {
	if f.nc == nil {
		return nil
	}
	return f.nc.Drain()
}
