package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/metrics"
)

// NATSPublisher publishes burn events to a JetStream stream under
// <prefix>.<event type>, e.g. burnrelay.burn.step.updated.
type NATSPublisher struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	stream  string
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

// NewNATSPublisher connects to NATS and makes sure the stream exists.
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	log := slog.Default().With("component", "nats")
	conn, err := nats.Connect(cfg.URL,
		nats.Name("burnrelay"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	p := &NATSPublisher{
		conn:    conn,
		js:      js,
		stream:  cfg.Stream,
		prefix:  cfg.SubjectPrefix,
		timeout: cfg.Timeout,
		log:     log,
	}
	if err := p.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) ensureStream() error {
	_, err := p.js.StreamInfo(p.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", p.stream, err)
	}
	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:      p.stream,
		Subjects:  []string{p.prefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", p.stream, err)
	}
	p.log.Info("created jetstream stream", "stream", p.stream)
	return nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, t domain.EventType) string {
	return prefix + "." + string(t)
}

func (p *NATSPublisher) Emit(ctx context.Context, event *domain.BurnEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	msgID := fmt.Sprintf("%s:%s:%s:%d", event.RecordID, event.StepID, event.StepStatus, event.Timestamp.UnixNano())
	_, err = p.js.Publish(Subject(p.prefix, event.Type), data, nats.Context(ctx), nats.MsgId(msgID))
	if err != nil {
		metrics.EventsPublished.WithLabelValues("nats", string(event.Type), "error").Inc()
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	metrics.EventsPublished.WithLabelValues("nats", string(event.Type), "ok").Inc()
	return nil
}

// Health reports whether the connection is up.
func (p *NATSPublisher) Health(context.Context) error {
	if !p.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
