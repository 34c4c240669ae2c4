package observer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nevindra/courier"
	"github.com/nevindra/courier/orchestrator"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

type mockProvider struct {
	name     string
	chatResp courier.ChatResponse
	chatErr  error
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Chat(_ context.Context, _ courier.ChatRequest) (courier.ChatResponse, error) {
	return m.chatResp, m.chatErr
}

type mockTool struct {
	defs   []courier.ToolDefinition
	result courier.ToolResult
	err    error
}

func (m *mockTool) Definitions() []courier.ToolDefinition { return m.defs }
func (m *mockTool) Execute(_ context.Context, _ string, _ json.RawMessage) (courier.ToolResult, error) {
	return m.result, m.err
}

type mockAgent struct {
	res courier.ExecutionResult
}

func (m *mockAgent) ID() string   { return "agent-1" }
func (m *mockAgent) Task() string { return "do it" }

func (m *mockAgent) Execute(context.Context) courier.ExecutionResult { return m.res }

// testInstruments creates Instruments on the global no-op providers, with
// spans captured by a recorder.
func testInstruments(t *testing.T) (*Instruments, *tracetest.SpanRecorder) {
	t.Helper()
	inst, err := newInstruments(nil)
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	inst.Tracer = tp.Tracer("test")
	return inst, rec
}

func spanNames(rec *tracetest.SpanRecorder) []string {
	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	return names
}

// ---------------------------------------------------------------------------
// ObservedProvider
// ---------------------------------------------------------------------------

func TestObservedProviderName(t *testing.T) {
	inst, _ := testInstruments(t)
	op := WrapProvider(&mockProvider{name: "test-provider"}, "test-model", inst)
	if got := op.Name(); got != "test-provider" {
		t.Errorf("Name() = %q, want %q", got, "test-provider")
	}
}

func TestObservedProviderChat(t *testing.T) {
	want := courier.ChatResponse{
		Content:      "hello from LLM",
		Usage:        courier.Usage{InputTokens: 10, OutputTokens: 5},
		FinishReason: courier.FinishStop,
	}
	inst, rec := testInstruments(t)
	op := WrapProvider(&mockProvider{name: "p", chatResp: want}, "m", inst)

	got, err := op.Chat(context.Background(), courier.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned unexpected error: %v", err)
	}
	if got.Content != want.Content || got.Usage != want.Usage {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if names := spanNames(rec); len(names) != 1 || names[0] != "llm.chat" {
		t.Errorf("spans = %v, want [llm.chat]", names)
	}
}

func TestObservedProviderMethodNames(t *testing.T) {
	inst, rec := testInstruments(t)
	op := WrapProvider(&mockProvider{name: "p"}, "m", inst)

	op.Chat(context.Background(), courier.ChatRequest{Tools: []courier.ToolDefinition{{Name: "web_search"}}})
	op.Chat(context.Background(), courier.ChatRequest{ResponseSchema: &courier.ResponseSchema{Name: "tasks"}})

	names := spanNames(rec)
	if len(names) != 2 || names[0] != "llm.chat_with_tools" || names[1] != "llm.chat_structured" {
		t.Errorf("spans = %v", names)
	}
}

func TestObservedProviderChatError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	inst, rec := testInstruments(t)
	op := WrapProvider(&mockProvider{name: "p", chatErr: wantErr}, "m", inst)

	_, err := op.Chat(context.Background(), courier.ChatRequest{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Chat error = %v, want %v", err, wantErr)
	}
	spans := rec.Ended()
	if len(spans) != 1 || len(spans[0].Events()) == 0 {
		t.Fatal("expected the error recorded on the span")
	}
}

// ---------------------------------------------------------------------------
// ObservedTool
// ---------------------------------------------------------------------------

func TestWrapToolNil(t *testing.T) {
	inst, _ := testInstruments(t)
	if WrapTool(nil, inst) != nil {
		t.Error("wrapping a nil tool should stay nil")
	}
}

func TestObservedToolDelegates(t *testing.T) {
	defs := []courier.ToolDefinition{{Name: "web_search"}}
	inner := &mockTool{defs: defs, result: courier.ToolResult{Content: "found"}}
	inst, rec := testInstruments(t)
	ot := WrapTool(inner, inst)

	if got := ot.Definitions(); len(got) != 1 || got[0].Name != "web_search" {
		t.Errorf("Definitions = %v", got)
	}
	res, err := ot.Execute(context.Background(), "web_search", json.RawMessage(`{}`))
	if err != nil || res.Content != "found" {
		t.Errorf("Execute = %+v, %v", res, err)
	}
	if names := spanNames(rec); len(names) != 1 || names[0] != "tool.execute" {
		t.Errorf("spans = %v", names)
	}
}

func TestObservedToolError(t *testing.T) {
	inst, _ := testInstruments(t)
	ot := WrapTool(&mockTool{result: courier.ToolResult{Error: "boom"}}, inst)

	res, err := ot.Execute(context.Background(), "x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Error != "boom" {
		t.Errorf("Error = %q, want boom", res.Error)
	}
}

// ---------------------------------------------------------------------------
// ObservedAgent
// ---------------------------------------------------------------------------

func TestObservedAgentPassesResultThrough(t *testing.T) {
	want := courier.ExecutionResult{
		AgentID: "agent-1",
		Status:  courier.StatusSuccess,
		Output:  "reading",
		Metadata: map[string]any{
			"kind":          courier.TaskTypeAstrology,
			"input_tokens":  10,
			"output_tokens": 20,
			"elapsed_ms":    int64(5),
		},
	}
	inst, rec := testInstruments(t)
	a := AgentWrapper(inst)(&mockAgent{res: want})

	if a.ID() != "agent-1" || a.Task() != "do it" {
		t.Errorf("ID/Task not delegated: %q %q", a.ID(), a.Task())
	}
	got := a.Execute(context.Background())
	if got.Output != "reading" || got.Status != courier.StatusSuccess {
		t.Errorf("Execute = %+v", got)
	}
	if names := spanNames(rec); len(names) != 1 || names[0] != "agent.execute" {
		t.Errorf("spans = %v", names)
	}
}

func TestObservedAgentFailure(t *testing.T) {
	inst, rec := testInstruments(t)
	a := WrapAgent(&mockAgent{res: courier.ExecutionResult{Status: courier.StatusError, Logs: []string{"timeout"}}}, inst)

	got := a.Execute(context.Background())
	if got.Status != courier.StatusError {
		t.Errorf("Status = %q", got.Status)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Events()[0].Name != "agent.failed" {
		t.Errorf("expected agent.failed event")
	}
}

// ---------------------------------------------------------------------------
// Turn and coalescer metrics
// ---------------------------------------------------------------------------

func TestRecordTurnAndFlushHook(t *testing.T) {
	inst, _ := testInstruments(t)

	// The global providers are no-ops; this checks nothing panics on the
	// recording paths.
	inst.RecordTurn(context.Background(), orchestrator.Turn{
		ID:      "t1",
		Tasks:   []courier.Task{{ID: "1"}, {ID: "2"}},
		Reply:   "hi",
		Elapsed: 1200 * time.Millisecond,
	})
	inst.RecordTurn(context.Background(), orchestrator.Turn{ID: "t2", Err: errors.New("decompose failed")})
	inst.FlushHook()(3, 1500*time.Millisecond)
}
