package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for spans and metrics.
var (
	AttrLLMModel     = attribute.Key("llm.model")
	AttrLLMProvider  = attribute.Key("llm.provider")
	AttrLLMMethod    = attribute.Key("llm.method")
	AttrFinishReason = attribute.Key("llm.finish_reason")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrToolCount = attribute.Key("llm.tool_count")
	AttrToolNames = attribute.Key("llm.tool_names")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")

	AttrAgentID     = attribute.Key("agent.id")
	AttrAgentKind   = attribute.Key("agent.kind")
	AttrAgentStatus = attribute.Key("agent.status")

	AttrTurnID          = attribute.Key("turn.id")
	AttrTurnTasks       = attribute.Key("turn.tasks")
	AttrTurnSynthesized = attribute.Key("turn.synthesized")
)
