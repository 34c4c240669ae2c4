package observer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nevindra/courier"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedTool wraps a courier.Tool with OTEL instrumentation.
type ObservedTool struct {
	inner courier.Tool
	inst  *Instruments
}

// WrapTool returns an instrumented tool. A nil tool stays nil so optional
// tools can be wrapped unconditionally.
func WrapTool(inner courier.Tool, inst *Instruments) courier.Tool {
	if inner == nil {
		return nil
	}
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Definitions() []courier.ToolDefinition {
	return o.inner.Definitions()
}

func (o *ObservedTool) Execute(ctx context.Context, name string, args json.RawMessage) (courier.ToolResult, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		AttrToolName.String(name),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Execute(ctx, name, args)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if result.Error != "" {
		status = "tool_error"
		span.AddEvent("tool.error", trace.WithAttributes(attribute.String("error", result.Error)))
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(result.Content)),
	)

	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(name),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(name),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("tool executed"))
	rec.AddAttributes(
		otellog.String("tool.name", name),
		otellog.String("tool.status", status),
		otellog.Int("tool.result_length", len(result.Content)),
		otellog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}
