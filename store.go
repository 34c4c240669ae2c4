package courier

import "context"

// --- Domain types (database records) ---

// Profile is what the bot knows about a sender. Birth fields are free-form
// text as the user typed them.
type Profile struct {
	ID         string `json:"id"`
	SenderKey  string `json:"sender_key"`
	Name       string `json:"name,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	BirthTime  string `json:"birth_time,omitempty"`
	BirthPlace string `json:"birth_place,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// HasBirthData reports whether enough is known to cast a chart.
func (p *Profile) HasBirthData() bool {
	return p != nil && p.BirthDate != ""
}

// Merge copies the non-empty fields of update into p.
func (p *Profile) Merge(update Profile) {
	if update.Name != "" {
		p.Name = update.Name
	}
	if update.BirthDate != "" {
		p.BirthDate = update.BirthDate
	}
	if update.BirthTime != "" {
		p.BirthTime = update.BirthTime
	}
	if update.BirthPlace != "" {
		p.BirthPlace = update.BirthPlace
	}
}

// Memory is a short fact extracted from past conversations.
type Memory struct {
	ID        string `json:"id"`
	SenderKey string `json:"sender_key"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

type Message struct {
	ID        string `json:"id"`
	SenderKey string `json:"sender_key"`
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// --- Store contracts ---

// ProfileStore persists sender profiles. GetProfile returns (nil, nil)
// for unknown senders.
type ProfileStore interface {
	GetProfile(ctx context.Context, senderKey string) (*Profile, error)
	UpsertProfile(ctx context.Context, p Profile) error
}

// MemoryStore persists extracted facts.
type MemoryStore interface {
	AddMemory(ctx context.Context, m Memory) error
	// ListMemories returns up to limit memories, newest first.
	ListMemories(ctx context.Context, senderKey string, limit int) ([]Memory, error)
}

// HistoryStore persists the conversation transcript.
type HistoryStore interface {
	AppendMessage(ctx context.Context, m Message) error
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, senderKey string, limit int) ([]Message, error)
}

// Store is the full persistence surface used by the app.
type Store interface {
	ProfileStore
	MemoryStore
	HistoryStore
	Init(ctx context.Context) error
	Close() error
}

// HistoryMessages converts stored messages into chat messages.
func HistoryMessages(msgs []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
