package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/courier/orchestrator"
)

// RecordTurn emits metrics and a log record for a finished turn.
func (i *Instruments) RecordTurn(ctx context.Context, turn orchestrator.Turn) {
	status := "ok"
	if turn.Err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		AttrTurnSynthesized.Bool(turn.Synthesized),
	)
	i.Turns.Add(ctx, 1, attrs)
	i.TurnDuration.Record(ctx, float64(turn.Elapsed.Milliseconds()), attrs)
	i.TurnTasks.Record(ctx, int64(len(turn.Tasks)))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("turn completed"))
	rec.AddAttributes(
		otellog.String("turn.id", turn.ID),
		otellog.Int("turn.tasks", len(turn.Tasks)),
		otellog.Bool("turn.synthesized", turn.Synthesized),
		otellog.Int("turn.reply_length", len(turn.Reply)),
		otellog.Float64("duration_ms", float64(turn.Elapsed.Milliseconds())),
		otellog.String("status", status),
	)
	i.Logger.Emit(ctx, rec)
}

// FlushHook returns a coalesce flush hook recording merged parts and how
// long each buffer stayed open.
func (i *Instruments) FlushHook() func(parts int, open time.Duration) {
	return func(parts int, open time.Duration) {
		ctx := context.Background()
		i.CoalesceParts.Record(ctx, int64(parts))
		i.CoalesceOpen.Record(ctx, float64(open.Milliseconds()))
	}
}
