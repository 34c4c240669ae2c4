package courier

import "context"

// ExecutionAgent is one unit of work in a turn: it turns a task description
// into an ExecutionResult, possibly calling tools along the way.
//
// Execute never returns a Go error. Failures are reported as
// StatusError with a user-safe fallback in Output so the orchestrator can
// always fan in.
type ExecutionAgent interface {
	// ID returns the agent's unique identifier.
	ID() string
	// Task returns the task description the agent was built with.
	Task() string
	// Execute runs the task to completion.
	Execute(ctx context.Context) ExecutionResult
}

// FallbackReply is the in-character message shown when an agent could not
// produce an answer.
const FallbackReply = "Sorry, the stars are a little cloudy right now. Could you try again in a moment?"
