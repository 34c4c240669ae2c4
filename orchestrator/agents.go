package orchestrator

import (
	"log/slog"

	"github.com/nevindra/courier"
)

const (
	basePersona = `You are Stella, a warm and witty astrology companion who chats by text message.
You are friendly, concise and never preachy. Answer in the user's language.`

	searchPersona = basePersona + `
Use the web_search tool for anything that depends on current facts. Cite the source site in a few words, never paste long URLs.`

	profilePersona = basePersona + `
The user is telling you about themselves. Call save_birth_data with every field they gave (name, birth date, birth time, birth place), then confirm briefly what you saved and what is still missing for a full chart.`

	astrologyPersona = basePersona + `
Give astrology readings grounded in the user's birth data when you have it. If the birth date is missing, give a general reading and ask for it in one short sentence.`
)

// AgentKit wires the bundled LLM agent variants to their provider and tools.
type AgentKit struct {
	Provider courier.Provider
	Search   courier.Tool // nil: web_search tasks fall back to the default agent
	Profile  courier.Tool // nil: profile_update tasks fall back to the default agent
	Remember courier.Tool // optional; offered to the general and profile agents
	MaxIter  int
	Params   *courier.GenerationParams
	Logger   *slog.Logger
	// Wrap, when set, decorates every agent (e.g. with tracing).
	Wrap func(courier.ExecutionAgent) courier.ExecutionAgent
}

// Options returns orchestrator options registering one factory per
// variant plus the general_query default.
func (k AgentKit) Options() []Option {
	general := k.factory(courier.TaskTypeGeneral, basePersona+rememberHint(k.Remember), k.Remember)
	opts := []Option{
		WithDefaultFactory(general),
		WithAgentFactory(courier.TaskTypeGeneral, general),
		WithAgentFactory(courier.TaskTypeAstrology, k.factory(courier.TaskTypeAstrology, astrologyPersona)),
	}
	if k.Search != nil {
		opts = append(opts, WithAgentFactory(courier.TaskTypeSearch, k.factory(courier.TaskTypeSearch, searchPersona, k.Search)))
	}
	if k.Profile != nil {
		opts = append(opts, WithAgentFactory(courier.TaskTypeProfile, k.factory(courier.TaskTypeProfile, profilePersona+rememberHint(k.Remember), k.Profile, k.Remember)))
	}
	return opts
}

func rememberHint(t courier.Tool) string {
	if t == nil {
		return ""
	}
	return "\nWhen the user shares a lasting personal fact or asks you to remember something, call remember."
}

func (k AgentKit) factory(kind, persona string, tools ...courier.Tool) Factory {
	var kept []courier.Tool
	for _, t := range tools {
		if t != nil {
			kept = append(kept, t)
		}
	}
	tools = kept
	return func(task courier.Task, actx courier.AgentContext) courier.ExecutionAgent {
		opts := []courier.AgentOption{
			courier.WithKind(kind),
			courier.WithPersona(persona),
			courier.WithTools(tools...),
			courier.WithMaxIter(k.MaxIter),
			courier.WithGenerationParams(k.Params),
		}
		if k.Logger != nil {
			opts = append(opts, courier.WithLogger(k.Logger))
		}
		var agent courier.ExecutionAgent = courier.NewLLMAgent(task.Description, actx, k.Provider, opts...)
		if k.Wrap != nil {
			agent = k.Wrap(agent)
		}
		return agent
	}
}
