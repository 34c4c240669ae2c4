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

// ObservedProvider wraps a courier.Provider with OTEL instrumentation.
type ObservedProvider struct {
	inner courier.Provider
	inst  *Instruments
	model string
}

// WrapProvider returns an instrumented provider. Wrap outside
// courier.WithRetry to see one span per logical call, inside it to see
// every attempt.
func WrapProvider(inner courier.Provider, model string, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst, model: model}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

func (o *ObservedProvider) Chat(ctx context.Context, req courier.ChatRequest) (courier.ChatResponse, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(
			AttrLLMModel.String(o.model),
			AttrLLMProvider.String(o.inner.Name()),
		),
	}
	method := "chat"
	switch {
	case len(req.Tools) > 0:
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Name
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
		method = "chat_with_tools"
	case req.ResponseSchema != nil:
		method = "chat_structured"
	}

	ctx, span := o.inst.Tracer.Start(ctx, "llm."+method, spanAttrs...)
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Chat(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	switch {
	case err != nil:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case resp.Blocked():
		status = "blocked"
	case resp.Truncated():
		status = "truncated"
	}

	o.record(ctx, span, method, status, durationMs, resp)
	return resp, err
}

func (o *ObservedProvider) record(ctx context.Context, span trace.Span, method, status string, durationMs float64, resp courier.ChatResponse) {
	usage := resp.Usage
	cost := o.inst.Cost.Calculate(o.model, usage.InputTokens, usage.OutputTokens)

	attrs := metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
	)

	span.SetAttributes(
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
		AttrCostUSD.Float64(cost),
		AttrFinishReason.String(string(resp.FinishReason)),
	)

	for direction, n := range map[string]int{"input": usage.InputTokens, "output": usage.OutputTokens} {
		o.inst.TokenUsage.Add(ctx, int64(n), metric.WithAttributes(
			AttrLLMModel.String(o.model),
			AttrLLMProvider.String(o.inner.Name()),
			attribute.String("direction", direction),
		))
	}
	o.inst.CostTotal.Add(ctx, cost, attrs)
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, attrs)

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.String("llm.method", method),
		otellog.Int("llm.tokens.input", usage.InputTokens),
		otellog.Int("llm.tokens.output", usage.OutputTokens),
		otellog.Float64("llm.cost_usd", cost),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

var _ courier.Provider = (*ObservedProvider)(nil)
