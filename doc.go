// Package courier is the core of a conversational SMS/WhatsApp bot.
//
// A carrier webhook delivers one text message at a time. Courier merges
// bursts from the same sender into one turn, decomposes the turn into
// independent tasks, runs one agent per task concurrently, synthesizes a
// single answer, and hands it back as carrier-sized segments.
//
// # Core Interfaces
//
// The root package defines the contracts the subpackages build on:
//
//   - [Provider]: LLM backend (chat with optional tool calling)
//   - [Tool]: pluggable capability for LLM function calling
//   - [ExecutionAgent]: one unit of work that turns a task into a result
//   - [ProfileStore], [MemoryStore], [HistoryStore]: per-sender persistence
//
// # Pipeline
//
// The pieces compose left to right:
//
//	coalesce.Coalescer -> orchestrator.Orchestrator -> twiml.Assemble
//
// with decompose.Decomposer and [AgentRegistry] used inside the
// orchestrator and chunk.Split inside the reply assembler.
//
// # Included Implementations
//
// Providers: provider/gemini, provider/openaicompat, provider/anthropic.
// Storage: store/sqlite (local), store/postgres.
// Tools: tools/search, tools/profile.
package courier
