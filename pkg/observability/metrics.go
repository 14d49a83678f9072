package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// TurnMetrics are the instruments recorded by the conversation flow
type TurnMetrics struct {
	turns           metric.Int64Counter
	turnDuration    metric.Float64Histogram
	gatewayFailures metric.Int64Counter
	levelUps        metric.Int64Counter
	milestones      metric.Int64Counter
	anniversaries   metric.Int64Counter
	breakerChanges  metric.Int64Counter
}

// NewTurnMetrics creates the instruments on meter
func NewTurnMetrics(meter metric.Meter) (*TurnMetrics, error) {
	var (
		m   TurnMetrics
		err error
	)
	if m.turns, err = meter.Int64Counter("conversation_turns_total",
		metric.WithDescription("Conversation turns by outcome")); err != nil {
		return nil, err
	}
	if m.turnDuration, err = meter.Float64Histogram("conversation_turn_duration_seconds",
		metric.WithDescription("Wall time of a conversation turn"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.gatewayFailures, err = meter.Int64Counter("gateway_failures_total",
		metric.WithDescription("Failed calls to the remote completion API")); err != nil {
		return nil, err
	}
	if m.levelUps, err = meter.Int64Counter("favorability_level_ups_total",
		metric.WithDescription("Favorability level increases by new level")); err != nil {
		return nil, err
	}
	if m.milestones, err = meter.Int64Counter("favorability_milestones_total",
		metric.WithDescription("Message-count milestones reached")); err != nil {
		return nil, err
	}
	if m.anniversaries, err = meter.Int64Counter("favorability_anniversaries_total",
		metric.WithDescription("Anniversaries reached")); err != nil {
		return nil, err
	}
	if m.breakerChanges, err = meter.Int64Counter("circuit_breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, err
	}
	return &m, nil
}

// NoopTurnMetrics records nothing
func NoopTurnMetrics() *TurnMetrics {
	m, _ := NewTurnMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *TurnMetrics) RecordTurn(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.turns.Add(ctx, 1, attrs)
	m.turnDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *TurnMetrics) RecordGatewayFailure(ctx context.Context) {
	m.gatewayFailures.Add(ctx, 1)
}

func (m *TurnMetrics) RecordLevelUp(ctx context.Context, level int) {
	m.levelUps.Add(ctx, 1, metric.WithAttributes(attribute.Int("level", level)))
}

func (m *TurnMetrics) RecordMilestone(ctx context.Context, milestone int) {
	m.milestones.Add(ctx, 1, metric.WithAttributes(attribute.Int("milestone", milestone)))
}

func (m *TurnMetrics) RecordAnniversary(ctx context.Context, days int) {
	m.anniversaries.Add(ctx, 1, metric.WithAttributes(attribute.Int("days", days)))
}

// RecordBreakerTransition matches the circuit breaker's state change hook
func (m *TurnMetrics) RecordBreakerTransition(name, from, to string) {
	m.breakerChanges.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
