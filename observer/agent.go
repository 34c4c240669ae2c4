package observer

import (
	"context"
	"time"

	"github.com/nevindra/courier"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedAgent wraps an ExecutionAgent to emit lifecycle spans, metrics
// and logs. Its span parents every LLM call and tool execution the agent
// makes through context propagation.
type ObservedAgent struct {
	inner courier.ExecutionAgent
	inst  *Instruments
}

// WrapAgent returns an instrumented agent. Its signature matches
// orchestrator.AgentKit.Wrap once bound to inst.
func WrapAgent(inner courier.ExecutionAgent, inst *Instruments) courier.ExecutionAgent {
	return &ObservedAgent{inner: inner, inst: inst}
}

// AgentWrapper returns WrapAgent bound to inst.
func AgentWrapper(inst *Instruments) func(courier.ExecutionAgent) courier.ExecutionAgent {
	return func(a courier.ExecutionAgent) courier.ExecutionAgent { return WrapAgent(a, inst) }
}

func (o *ObservedAgent) ID() string   { return o.inner.ID() }
func (o *ObservedAgent) Task() string { return o.inner.Task() }

func (o *ObservedAgent) Execute(ctx context.Context) courier.ExecutionResult {
	ctx, span := o.inst.Tracer.Start(ctx, "agent.execute", trace.WithAttributes(
		AttrAgentID.String(o.inner.ID()),
	))
	defer span.End()
	start := time.Now()

	res := o.inner.Execute(ctx)

	durationMs := float64(time.Since(start).Milliseconds())
	kind, _ := res.Metadata["kind"].(string)
	in, _ := res.Metadata["input_tokens"].(int)
	out, _ := res.Metadata["output_tokens"].(int)

	switch {
	case ctx.Err() != nil && res.Status != courier.StatusSuccess:
		span.AddEvent("agent.cancelled")
		span.SetStatus(codes.Error, "cancelled")
	case res.Status == courier.StatusError:
		span.AddEvent("agent.failed", trace.WithAttributes(
			attribute.StringSlice("logs", res.Logs),
		))
		span.SetStatus(codes.Error, "agent failed")
	default:
		span.AddEvent("agent.completed")
	}

	span.SetAttributes(
		AttrAgentKind.String(kind),
		AttrAgentStatus.String(string(res.Status)),
		AttrTokensInput.Int(in),
		AttrTokensOutput.Int(out),
	)

	o.inst.AgentExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrAgentKind.String(kind),
		attribute.String("status", string(res.Status)),
	))
	o.inst.AgentDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrAgentKind.String(kind),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("agent execution completed"))
	rec.AddAttributes(
		otellog.String("agent.id", o.inner.ID()),
		otellog.String("agent.kind", kind),
		otellog.String("agent.status", string(res.Status)),
		otellog.Int("tokens.input", in),
		otellog.Int("tokens.output", out),
		otellog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return res
}

var _ courier.ExecutionAgent = (*ObservedAgent)(nil)
