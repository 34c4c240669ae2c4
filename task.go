package courier

import "context"

// Well-known task types. Type is a free-form tag; unknown values are
// routed to the default agent.
const (
	TaskTypeGeneral   = "general_query"
	TaskTypeSearch    = "web_search"
	TaskTypeProfile   = "profile_update"
	TaskTypeAstrology = "astrology_reading"
)

// DefaultPriority is assigned when the decomposer omits or garbles one.
const DefaultPriority = 5

// Task is one independent unit of a user turn. Tasks are created by the
// decomposer, consumed once by the orchestrator, and never persisted.
type Task struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Description       string `json:"description"`
	Priority          int    `json:"priority"` // 1..10
	RequiredAgentType string `json:"required_agent_type,omitempty"`
}

// Status is the outcome class of an ExecutionResult.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPartial Status = "partial"
)

// ExecutionResult is produced once by ExecutionAgent.Execute and is
// read-only afterwards.
type ExecutionResult struct {
	AgentID  string         `json:"agent_id"`
	Task     string         `json:"task"`
	Status   Status         `json:"status"`
	Output   string         `json:"output"`
	Logs     []string       `json:"logs,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"` // always carries "elapsed_ms"
}

// AgentContext is the read-only snapshot every agent in a turn sees.
// Agents must not mutate it; slices are shared between concurrent agents.
type AgentContext struct {
	SenderID string        // normalized sender key (digits only)
	UserID   string        // internal profile id; empty for unknown senders
	History  []ChatMessage // oldest first, bounded
	Profile  *Profile      // nil when the sender has no profile yet
	Memories []Memory
}

// DefaultHistoryLimit bounds AgentContext.History when built by
// NewAgentContext.
const DefaultHistoryLimit = 20

// NewAgentContext builds a snapshot keeping the last limit history
// entries (DefaultHistoryLimit when limit <= 0).
func NewAgentContext(senderID string, profile *Profile, memories []Memory, history []ChatMessage, limit int) AgentContext {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	actx := AgentContext{
		SenderID: senderID,
		History:  history,
		Profile:  profile,
		Memories: memories,
	}
	if profile != nil {
		actx.UserID = profile.ID
	}
	return actx
}

type agentContextKey struct{}

// WithAgentContext returns a child context carrying actx so tools can find
// out whose turn they are serving.
func WithAgentContext(ctx context.Context, actx AgentContext) context.Context {
	return context.WithValue(ctx, agentContextKey{}, actx)
}

// AgentContextFrom retrieves the AgentContext stored by WithAgentContext.
func AgentContextFrom(ctx context.Context) (AgentContext, bool) {
	actx, ok := ctx.Value(agentContextKey{}).(AgentContext)
	return actx, ok
}
