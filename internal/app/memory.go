package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nevindra/courier"
)

const (
	maxFactsPerTurn = 5
	maxFactLen      = 280
)

var factsSchema = &courier.ResponseSchema{
	Name:   "memory_facts",
	Schema: json.RawMessage(`{"type":"array","items":{"type":"string"}}`),
}

// MemorySystemPrompt is sent to the extraction LLM after each turn.
const MemorySystemPrompt = `You extract lasting personal facts about the USER from one text exchange with an astrology companion bot.

Return a JSON array of strings, each one short fact in third person, e.g. ["Has a sister named Ana.", "Is nervous about a job interview on Friday."].

## Rules
- Only facts about the user that will still matter in a week: relationships, plans, preferences, life events.
- Skip birth date, birth time and birth place; those are stored elsewhere.
- Skip anything the bot said unless the user confirmed it.
- Skip facts already listed under "Known facts".
- Return [] when there is nothing worth keeping.
- Respond with ONLY the JSON array, no extra text.`

// extractMemories asks the LLM for new facts and stores them. Errors are
// logged and dropped.
func (a *App) extractMemories(ctx context.Context, sender, userText, reply string, known []courier.Memory, logger *slog.Logger) {
	var prompt strings.Builder
	if len(known) > 0 {
		prompt.WriteString("Known facts:\n")
		for _, m := range known {
			prompt.WriteString("- " + m.Content + "\n")
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("User: " + userText + "\nBot: " + reply)

	req := courier.ChatRequest{
		Messages: []courier.ChatMessage{
			courier.SystemMessage(MemorySystemPrompt),
			courier.UserMessage(prompt.String()),
		},
		ResponseSchema: factsSchema,
	}
	resp, err := courier.Retry(ctx, a.retry, "memory_extract", logger, func(ctx context.Context) (courier.ChatResponse, error) {
		return a.memoryLLM.Chat(ctx, req)
	})
	if err != nil {
		logger.Warn("memory extraction failed", "error", err)
		return
	}

	seen := make(map[string]bool, len(known))
	for _, m := range known {
		seen[strings.ToLower(m.Content)] = true
	}
	saved := 0
	for _, fact := range ParseFacts(resp.Content) {
		if seen[strings.ToLower(fact)] {
			continue
		}
		seen[strings.ToLower(fact)] = true
		err := a.store.AddMemory(ctx, courier.Memory{
			ID:        courier.NewID(),
			SenderKey: sender,
			Content:   fact,
			CreatedAt: courier.NowUnix(),
		})
		if err != nil {
			logger.Error("store memory failed", "error", err)
			continue
		}
		saved++
	}
	if saved > 0 {
		logger.Debug("memories saved", "count", saved)
	}
}

// ParseFacts parses an LLM response into at most maxFactsPerTurn facts.
// Unparseable responses yield none.
func ParseFacts(response string) []string {
	var raw []string
	if err := json.Unmarshal([]byte(extractJSONArray(response)), &raw); err != nil {
		return nil
	}
	var facts []string
	for _, f := range raw {
		f = strings.TrimSpace(f)
		if f == "" || len(f) > maxFactLen {
			continue
		}
		facts = append(facts, f)
		if len(facts) == maxFactsPerTurn {
			break
		}
	}
	return facts
}

// extractJSONArray finds the outermost JSON array in a string (handles code fences).
func extractJSONArray(input string) string {
	trimmed := strings.TrimSpace(input)

	// Strip markdown code fences
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
