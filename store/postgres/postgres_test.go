package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/nevindra/courier"
)

// testStore connects to COURIER_TEST_POSTGRES_DSN; tests skip without it.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COURIER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COURIER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, WithMaxConns(4))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, table := range []string{"profiles", "memories", "messages"} {
		if _, err := s.pool.Exec(ctx, "TRUNCATE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return s
}

func TestOpen_BadDSN(t *testing.T) {
	if _, err := Open(context.Background(), "://not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

func TestCloseWithoutOwnedPool(t *testing.T) {
	if err := New(nil).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if p, err := s.GetProfile(ctx, "1555"); err != nil || p != nil {
		t.Fatalf("GetProfile unknown = %v, %v", p, err)
	}
	if err := s.UpsertProfile(ctx, courier.Profile{ID: "p1", SenderKey: "1555", Name: "Maya", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertProfile(ctx, courier.Profile{ID: "p2", SenderKey: "1555", Name: "Maya", BirthPlace: "Lisbon", CreatedAt: 2, UpdatedAt: 2}); err != nil {
		t.Fatal(err)
	}
	p, err := s.GetProfile(ctx, "1555")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "p1" || p.BirthPlace != "Lisbon" || p.UpdatedAt != 2 {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestMessagesAndMemories(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, c := range []string{"one", "two", "three"} {
		if err := s.AppendMessage(ctx, courier.Message{ID: courier.NewID(), SenderKey: "a", Role: "user", Content: c, CreatedAt: int64(i)}); err != nil {
			t.Fatal(err)
		}
		if err := s.AddMemory(ctx, courier.Memory{ID: courier.NewID(), SenderKey: "a", Content: c, CreatedAt: int64(i)}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.RecentMessages(ctx, "a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("RecentMessages = %v", msgs)
	}

	mems, err := s.ListMemories(ctx, "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(mems) != 3 || mems[0].Content != "three" {
		t.Errorf("ListMemories = %v", mems)
	}
}
