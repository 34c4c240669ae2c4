// Package observer provides OTEL-based observability for courier.
//
// It wraps Provider, Tool and ExecutionAgent with instrumented versions
// that emit traces, metrics and logs, and records turn and coalescing
// metrics. Export goes to any OTEL-compatible backend configured through
// the standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/courier/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// LLM and tools
	TokenUsage     metric.Int64Counter
	CostTotal      metric.Float64Counter
	LLMRequests    metric.Int64Counter
	ToolExecutions metric.Int64Counter
	LLMDuration    metric.Float64Histogram
	ToolDuration   metric.Float64Histogram

	// Agent-level
	AgentExecutions metric.Int64Counter
	AgentDuration   metric.Float64Histogram

	// Turn-level
	Turns         metric.Int64Counter
	TurnDuration  metric.Float64Histogram
	TurnTasks     metric.Int64Histogram
	CoalesceParts metric.Int64Histogram
	CoalesceOpen  metric.Float64Histogram

	Cost *CostCalculator
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, pricing map[string]ModelPricing) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("courier")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments(pricing)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}
	return inst, shutdown, nil
}

// instrumentSet collects creation errors so newInstruments reads as a list.
type instrumentSet struct {
	meter metric.Meter
	errs  []error
}

func (s *instrumentSet) counter(name, desc, unit string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.errs = append(s.errs, err)
	return c
}

func (s *instrumentSet) floatCounter(name, desc, unit string) metric.Float64Counter {
	c, err := s.meter.Float64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.errs = append(s.errs, err)
	return c
}

func (s *instrumentSet) histogram(name, desc, unit string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.errs = append(s.errs, err)
	return h
}

func (s *instrumentSet) intHistogram(name, desc, unit string) metric.Int64Histogram {
	h, err := s.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	s.errs = append(s.errs, err)
	return h
}

func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	meter := otel.Meter(scopeName)
	s := &instrumentSet{meter: meter}

	inst := &Instruments{
		Tracer: otel.Tracer(scopeName),
		Meter:  meter,
		Logger: global.GetLoggerProvider().Logger(scopeName),

		TokenUsage:     s.counter("llm.token.usage", "Total tokens consumed", "{token}"),
		CostTotal:      s.floatCounter("llm.cost.total", "Cumulative LLM cost in USD", "USD"),
		LLMRequests:    s.counter("llm.requests", "LLM request count", "{request}"),
		ToolExecutions: s.counter("tool.executions", "Tool execution count", "{execution}"),
		LLMDuration:    s.histogram("llm.duration", "LLM call duration", "ms"),
		ToolDuration:   s.histogram("tool.duration", "Tool execution duration", "ms"),

		AgentExecutions: s.counter("agent.executions", "Agent execution count", "{execution}"),
		AgentDuration:   s.histogram("agent.duration", "Agent execution duration", "ms"),

		Turns:         s.counter("turn.count", "Processed turns", "{turn}"),
		TurnDuration:  s.histogram("turn.duration", "Turn duration from decomposition to reply", "ms"),
		TurnTasks:     s.intHistogram("turn.tasks", "Tasks per turn", "{task}"),
		CoalesceParts: s.intHistogram("coalesce.parts", "Messages merged per flush", "{message}"),
		CoalesceOpen:  s.histogram("coalesce.open", "Time a coalescing buffer stayed open", "ms"),

		Cost: NewCostCalculator(pricing),
	}
	if err := errors.Join(s.errs...); err != nil {
		return nil, err
	}
	return inst, nil
}
