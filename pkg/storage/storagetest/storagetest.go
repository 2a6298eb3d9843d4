// Package storagetest provides a conformance suite for storage.HistoryStore
// implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/storage"
)

// Run exercises store against the HistoryStore contract. newStore must
// return an empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.HistoryStore) {
	t.Run("EmptyConversation", func(t *testing.T) {
		s := newStore(t)
		turns, err := s.GetMessages(context.Background(), "unknown", 50)
		if err != nil {
			t.Fatalf("GetMessages: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("got %d turns, want 0", len(turns))
		}
	})

	t.Run("AppendAndReadInOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		add(t, s, ctx, "c1", api.RoleUser, "hello")
		add(t, s, ctx, "c1", api.RoleAssistant, "hi there")
		add(t, s, ctx, "c1", api.RoleUser, "how are you?")

		turns, err := s.GetMessages(ctx, "c1", 50)
		if err != nil {
			t.Fatalf("GetMessages: %v", err)
		}
		want := []string{"hello", "hi there", "how are you?"}
		if len(turns) != len(want) {
			t.Fatalf("got %d turns, want %d", len(turns), len(want))
		}
		for i, w := range want {
			if turns[i].Content != w {
				t.Errorf("turn %d content = %q, want %q", i, turns[i].Content, w)
			}
		}
		if turns[1].Role != api.RoleAssistant {
			t.Errorf("turn 1 role = %q, want assistant", turns[1].Role)
		}
		if turns[0].CreatedAt.IsZero() {
			t.Error("turn has no timestamp")
		}
	})

	t.Run("LimitReturnsMostRecent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 10; i++ {
			add(t, s, ctx, "c1", api.RoleUser, fmt.Sprintf("m%d", i))
		}

		turns, err := s.GetMessages(ctx, "c1", 3)
		if err != nil {
			t.Fatalf("GetMessages: %v", err)
		}
		if len(turns) != 3 {
			t.Fatalf("got %d turns, want 3", len(turns))
		}
		if turns[0].Content != "m7" || turns[2].Content != "m9" {
			t.Errorf("window = [%s .. %s], want [m7 .. m9]", turns[0].Content, turns[2].Content)
		}

		all, err := s.GetMessages(ctx, "c1", 0)
		if err != nil {
			t.Fatalf("GetMessages(limit 0): %v", err)
		}
		if len(all) != 10 {
			t.Errorf("limit 0 returned %d turns, want 10", len(all))
		}
	})

	t.Run("ConversationsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		add(t, s, ctx, "c1", api.RoleUser, "one")
		add(t, s, ctx, "c2", api.RoleUser, "two")

		turns, _ := s.GetMessages(ctx, "c1", 50)
		if len(turns) != 1 || turns[0].Content != "one" {
			t.Errorf("c1 turns = %+v", turns)
		}
	})

	t.Run("TenantsAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctxA := storage.SetTenant(context.Background(), "tenant-a")
		ctxB := storage.SetTenant(context.Background(), "tenant-b")
		add(t, s, ctxA, "shared", api.RoleUser, "from a")

		turns, err := s.GetMessages(ctxB, "shared", 50)
		if err != nil {
			t.Fatalf("GetMessages: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("tenant b sees %d turns of tenant a", len(turns))
		}
	})

	t.Run("RejectsInvalidTurns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.AddMessage(ctx, "c1", "system", "x"); !errors.Is(err, storage.ErrInvalidRole) {
			t.Errorf("system role error = %v, want ErrInvalidRole", err)
		}
		if err := s.AddMessage(ctx, "", api.RoleUser, "x"); !errors.Is(err, storage.ErrEmptyConversationID) {
			t.Errorf("empty id error = %v, want ErrEmptyConversationID", err)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.AddMessage(ctx, "busy", api.RoleUser, fmt.Sprintf("m%d", i))
			}(i)
		}
		wg.Wait()

		turns, err := s.GetMessages(ctx, "busy", 0)
		if err != nil {
			t.Fatalf("GetMessages: %v", err)
		}
		if len(turns) != 10 {
			t.Errorf("got %d turns, want 10", len(turns))
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		s := newStore(t)
		if err := s.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck: %v", err)
		}
	})
}

func add(t *testing.T, s storage.HistoryStore, ctx context.Context, conv string, role api.Role, content string) {
	t.Helper()
	if err := s.AddMessage(ctx, conv, role, content); err != nil {
		t.Fatalf("AddMessage(%s, %s): %v", conv, role, err)
	}
}
