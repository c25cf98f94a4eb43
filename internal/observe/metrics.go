// Package observe holds the OpenTelemetry instruments of the server and the
// Prometheus bridge that exposes them on /metrics.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/satriahrh/ami"

// Turn outcomes recorded on TurnsTotal
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeTransport   = "transport_error"
	OutcomeError       = "error"
)

// Metrics holds all instruments. The OTel types are safe for concurrent use.
type Metrics struct {
	// TurnDuration tracks the time from sending a user turn to the model's
	// turn boundary. Attribute: kind (text|audio).
	TurnDuration metric.Float64Histogram

	// TurnsTotal counts turns. Attributes: kind, outcome.
	TurnsTotal metric.Int64Counter

	// ParseFallbacks counts replies that were not the JSON envelope
	ParseFallbacks metric.Int64Counter

	// PersistenceFailures counts chat records that could not be saved
	PersistenceFailures metric.Int64Counter

	// ActiveSessions tracks connected live sessions
	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates every instrument from mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("ami.live.turn.duration",
		metric.WithDescription("Latency of a live turn from send to turn boundary."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnsTotal, err = m.Int64Counter("ami.live.turns",
		metric.WithDescription("Live turns by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ParseFallbacks, err = m.Int64Counter("ami.reply.parse_fallbacks",
		metric.WithDescription("Replies that fell back to raw text."),
	); err != nil {
		return nil, err
	}
	if met.PersistenceFailures, err = m.Int64Counter("ami.chat.persistence_failures",
		metric.WithDescription("Chat records that failed to save."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("ami.live.active_sessions",
		metric.WithDescription("Number of connected live sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NopMetrics returns instruments that record nothing
func NopMetrics() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return met
}

// RecordTurn records the duration and outcome of one turn
func (m *Metrics) RecordTurn(ctx context.Context, kind, outcome string, elapsed time.Duration) {
	m.TurnsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
	if outcome == OutcomeOK {
		m.TurnDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordParseFallback counts one raw-text reply
func (m *Metrics) RecordParseFallback(ctx context.Context) {
	m.ParseFallbacks.Add(ctx, 1)
}

// RecordPersistenceFailure counts one chat record that was not saved
func (m *Metrics) RecordPersistenceFailure(ctx context.Context) {
	m.PersistenceFailures.Add(ctx, 1)
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}
