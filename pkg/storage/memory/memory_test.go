package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/storage"
	"github.com/rhuss/steward/pkg/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.HistoryStore {
		return New(0)
	})
}

func TestLRUEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	_ = s.AddMessage(ctx, "c1", api.RoleUser, "one")
	_ = s.AddMessage(ctx, "c2", api.RoleUser, "two")

	// Touch c1 so c2 becomes least recently used.
	if _, err := s.GetMessages(ctx, "c1", 10); err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	_ = s.AddMessage(ctx, "c3", api.RoleUser, "three")

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if turns, _ := s.GetMessages(ctx, "c2", 10); len(turns) != 0 {
		t.Error("c2 should have been evicted")
	}
	if turns, _ := s.GetMessages(ctx, "c1", 10); len(turns) != 1 {
		t.Error("c1 should have survived eviction")
	}
}

func TestMaxTurnsPerConversation(t *testing.T) {
	s := New(0, WithMaxTurns(3))
	ctx := context.Background()
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		_ = s.AddMessage(ctx, "c1", api.RoleUser, m)
	}

	turns, _ := s.GetMessages(ctx, "c1", 0)
	if len(turns) != 3 || turns[0].Content != "c" {
		t.Errorf("turns = %+v, want last three starting at c", turns)
	}
}

func TestClock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(0, WithClock(func() time.Time { return fixed }))
	_ = s.AddMessage(context.Background(), "c1", api.RoleUser, "hi")

	turns, _ := s.GetMessages(context.Background(), "c1", 1)
	if !turns[0].CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", turns[0].CreatedAt, fixed)
	}
}

func TestReturnedTurnsAreCopies(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	_ = s.AddMessage(ctx, "c1", api.RoleUser, "original")

	turns, _ := s.GetMessages(ctx, "c1", 1)
	turns[0].Content = "mutated"

	again, _ := s.GetMessages(ctx, "c1", 1)
	if again[0].Content != "original" {
		t.Error("caller mutation leaked into the store")
	}
}
