// Package events fans burn record changes out to logs, NATS and websocket
// subscribers.
package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/metrics"
)

// Emitter defines the interface for emitting burn events
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.BurnEvent) error

	// Close closes the emitter connection
	Close() error
}

// Multi emits every event to all of its sinks. A failing sink does not stop
// the others.
type Multi struct {
	sinks []Emitter
	log   *slog.Logger
}

func NewMulti(sinks ...Emitter) *Multi {
	return &Multi{sinks: sinks, log: slog.Default().With("component", "events")}
}

// Add appends a sink.
func (m *Multi) Add(e Emitter) {
	m.sinks = append(m.sinks, e)
}

func (m *Multi) Emit(ctx context.Context, event *domain.BurnEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, event); err != nil {
			m.log.Warn("event sink failed", "type", event.Type, "record", event.RecordID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// LogEmitter writes events to the structured log.
type LogEmitter struct {
	log *slog.Logger
}

func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log.With("component", "burn_events")}
}

func (l *LogEmitter) Emit(ctx context.Context, event *domain.BurnEvent) error {
	attrs := []any{
		"type", event.Type,
		"record", event.RecordID,
		"chain", event.Chain,
		"record_status", event.RecordStatus,
	}
	if event.StepID != "" {
		attrs = append(attrs, "step", event.StepID, "step_status", event.StepStatus)
	}
	if event.TxRef != "" {
		attrs = append(attrs, "tx", event.TxRef)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	level := slog.LevelInfo
	if event.StepStatus == domain.StepFailed {
		level = slog.LevelWarn
	}
	l.log.Log(ctx, level, event.Summary, attrs...)
	metrics.EventsPublished.WithLabelValues("log", string(event.Type), "ok").Inc()
	return nil
}

func (l *LogEmitter) Close() error { return nil }

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, *domain.BurnEvent) error { return nil }
func (Nop) Close() error                                  { return nil }
