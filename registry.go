package courier

import (
	"slices"
	"sync"
)

// AgentRegistry tracks live agents by id and by task type. It holds no
// execution logic. Safe for concurrent use.
type AgentRegistry struct {
	mu     sync.RWMutex
	byID   map[string]registered
	byType map[string][]string // task type -> agent ids, registration order
}

type registered struct {
	agent    ExecutionAgent
	taskType string
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		byID:   make(map[string]registered),
		byType: make(map[string][]string),
	}
}

// Register adds agent under taskType. Re-registering an id moves it to the
// new type.
func (r *AgentRegistry) Register(agent ExecutionAgent, taskType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := agent.ID()
	if old, ok := r.byID[id]; ok {
		r.unindex(id, old.taskType)
	}
	r.byID[id] = registered{agent: agent, taskType: taskType}
	r.byType[taskType] = append(r.byType[taskType], id)
}

// Get returns the agent with id.
func (r *AgentRegistry) Get(id string) (ExecutionAgent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e.agent, ok
}

// ByTaskType returns the agents registered for taskType in registration
// order. The returned slice is a copy.
func (r *AgentRegistry) ByTaskType(taskType string) []ExecutionAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byType[taskType]
	out := make([]ExecutionAgent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id].agent)
	}
	return out
}

// Remove drops the agent with id. Unknown ids are ignored.
func (r *AgentRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	r.unindex(id, e.taskType)
}

// Clear drops every agent.
func (r *AgentRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byID)
	clear(r.byType)
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// unindex must be called with mu held.
func (r *AgentRegistry) unindex(id, taskType string) {
	ids := slices.DeleteFunc(r.byType[taskType], func(s string) bool { return s == id })
	if len(ids) == 0 {
		delete(r.byType, taskType)
		return
	}
	r.byType[taskType] = ids
}
