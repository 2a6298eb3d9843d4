package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/router"
	"github.com/rhuss/steward/pkg/storage/memory"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/tools/registry"
)

type fixture struct {
	store    *Store
	reg      *registry.Registry
	history  *memory.Store
	resolver *Resolver

	mu    sync.Mutex
	calls []tools.CallContext
}

func newFixture(t *testing.T, opts ...StoreOption) *fixture {
	t.Helper()
	f := &fixture{
		store:   NewStore(opts...),
		reg:     registry.New(),
		history: memory.New(0),
	}
	register := func(name string, h tools.HandlerFunc) {
		err := f.reg.RegisterTool("moderation", tools.ToolDescriptor{
			Name:        name,
			Visibility:  permission.Anchor,
			Destructive: true,
			Handler: tools.HandlerFunc(func(ctx context.Context, args json.RawMessage, call tools.CallContext) (*tools.Result, error) {
				f.mu.Lock()
				f.calls = append(f.calls, call)
				f.mu.Unlock()
				return h(ctx, args, call)
			}),
		})
		if err != nil {
			t.Fatalf("RegisterTool(%s): %v", name, err)
		}
	}
	register("delete_channel", func(_ context.Context, args json.RawMessage, _ tools.CallContext) (*tools.Result, error) {
		var in struct{ Channel string }
		_ = json.Unmarshal(args, &in)
		return tools.TextResult("channel " + in.Channel + " deleted"), nil
	})
	register("ban_user", func(context.Context, json.RawMessage, tools.CallContext) (*tools.Result, error) {
		return nil, errors.New("user is a moderator")
	})

	f.resolver = NewResolver(f.store, f.reg, router.New(f.reg), f.history, nil)
	return f
}

func (f *fixture) invocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fixture) lastAssistantTurn(t *testing.T, conv string) string {
	t.Helper()
	turns, err := f.history.GetMessages(context.Background(), conv, 1)
	if err != nil || len(turns) == 0 {
		t.Fatalf("no turns recorded for %s (err=%v)", conv, err)
	}
	if turns[0].Role != api.RoleAssistant {
		t.Fatalf("last turn role = %s, want assistant", turns[0].Role)
	}
	return turns[0].Content
}

var anchorCall = tools.CallContext{Level: permission.Anchor}

var deleteGeneral = api.PendingConfirmation{
	ToolName:    "delete_channel",
	Description: "delete the #general channel",
	Args:        json.RawMessage(`{"channel":"general"}`),
}

func TestConfirmExecutesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.store.Set("c1", deleteGeneral); err != nil {
		t.Fatalf("Set: %v", err)
	}

	resp, err := f.resolver.Confirm(ctx, "c1", true, anchorCall)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	want := "Completed: delete the #general channel\n\nchannel general deleted"
	if resp.Text != want {
		t.Errorf("Text = %q, want %q", resp.Text, want)
	}
	if len(resp.ToolResults) != 1 || resp.ToolResults[0].Text != "channel general deleted" {
		t.Errorf("ToolResults = %+v", resp.ToolResults)
	}
	if got := f.lastAssistantTurn(t, "c1"); !strings.Contains(got, deleteGeneral.Description) {
		t.Errorf("assistant turn %q does not mention the description", got)
	}
	if f.invocations() != 1 {
		t.Fatalf("tool invoked %d times, want 1", f.invocations())
	}
	call := f.calls[0]
	if call.Level != permission.Anchor || call.Interface != tools.InterfaceConfirmation || call.ConversationID != "c1" {
		t.Errorf("synthesized call context = %+v", call)
	}

	again, err := f.resolver.Confirm(ctx, "c1", true, anchorCall)
	if err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if again.Text != TextNothingPending {
		t.Errorf("second Confirm text = %q, want nothing pending", again.Text)
	}
	if f.invocations() != 1 {
		t.Errorf("second Confirm invoked the tool again")
	}
}

func TestConfirmRequiresCallerLevel(t *testing.T) {
	archive := api.PendingConfirmation{
		ToolName:      "archive_channel",
		Description:   "archive #ops",
		RequiredLevel: permission.Trusted,
	}

	tests := []struct {
		name      string
		pending   api.PendingConfirmation
		caller    permission.Level
		confirmed bool
		wantOK    bool
	}{
		{"public confirms anchor action", deleteGeneral, permission.Public, true, false},
		{"public declines anchor action", deleteGeneral, permission.Public, false, false},
		{"trusted confirms anchor action", deleteGeneral, permission.Trusted, true, false},
		{"empty caller level is public", deleteGeneral, "", true, false},
		{"anchor confirms anchor action", deleteGeneral, permission.Anchor, true, true},
		{"public confirms trusted action", archive, permission.Public, true, false},
		{"trusted confirms trusted action", archive, permission.Trusted, true, true},
		{"trusted action on an anchor-only tool", api.PendingConfirmation{
			ToolName: "delete_channel", Description: "delete", RequiredLevel: permission.Trusted,
		}, permission.Trusted, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.reg.RegisterTool("moderation", tools.ToolDescriptor{
				Name:        "archive_channel",
				Visibility:  permission.Trusted,
				Destructive: true,
				Handler: tools.HandlerFunc(func(context.Context, json.RawMessage, tools.CallContext) (*tools.Result, error) {
					return tools.TextResult("archived"), nil
				}),
			})
			if err != nil {
				t.Fatal(err)
			}
			_ = f.store.Set("c1", tt.pending)

			resp, err := f.resolver.Confirm(context.Background(), "c1", tt.confirmed, tools.CallContext{Level: tt.caller})
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Confirm: %v", err)
				}
				if strings.HasPrefix(resp.Text, "Failed") {
					t.Errorf("Text = %q", resp.Text)
				}
				if _, ok := f.store.Peek("c1"); ok {
					t.Error("entry survived an accepted confirmation")
				}
				return
			}

			if !errors.Is(err, tools.ErrForbidden) {
				t.Fatalf("err = %v, want ErrForbidden", err)
			}
			if f.invocations() != 0 {
				t.Error("tool invoked for a refused caller")
			}
			if _, ok := f.store.Peek("c1"); !ok {
				t.Error("refused caller consumed the pending entry")
			}
			turns, _ := f.history.GetMessages(context.Background(), "c1", 0)
			if len(turns) != 0 {
				t.Errorf("refusal recorded %d turns", len(turns))
			}
		})
	}
}

func TestConfirmRunsAtCallerLevel(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Set("c1", deleteGeneral)

	caller := tools.CallContext{Level: permission.Anchor, ChannelID: "C42", UserID: "owner"}
	if _, err := f.resolver.Confirm(context.Background(), "c1", true, caller); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if f.invocations() != 1 {
		t.Fatalf("invocations = %d, want 1", f.invocations())
	}
	got := f.calls[0]
	if got.Level != permission.Anchor || got.ChannelID != "C42" || got.UserID != "owner" {
		t.Errorf("call context = %+v", got)
	}
}

func TestTakeIf(t *testing.T) {
	s := NewStore()

	if _, found, _ := s.TakeIf("c1", func(api.PendingConfirmation) bool { return true }); found {
		t.Error("found an entry in an empty store")
	}

	_ = s.Set("c1", deleteGeneral)
	p, found, taken := s.TakeIf("c1", func(api.PendingConfirmation) bool { return false })
	if !found || taken || p.ToolName != "delete_channel" {
		t.Errorf("refused TakeIf = %+v, %v, %v", p, found, taken)
	}
	if _, ok := s.Peek("c1"); !ok {
		t.Fatal("refused entry was removed")
	}

	if _, found, taken := s.TakeIf("c1", func(api.PendingConfirmation) bool { return true }); !found || !taken {
		t.Errorf("accepted TakeIf = %v, %v", found, taken)
	}
	if _, ok := s.Peek("c1"); ok {
		t.Error("accepted entry was kept")
	}
}

func TestDeclineInvokesNothing(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Set("c1", deleteGeneral)

	resp, err := f.resolver.Confirm(context.Background(), "c1", false, anchorCall)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !strings.Contains(resp.Text, "cancelled") || !strings.Contains(resp.Text, deleteGeneral.Description) {
		t.Errorf("Text = %q", resp.Text)
	}
	if f.invocations() != 0 {
		t.Errorf("tool invoked on decline")
	}
	if got := f.lastAssistantTurn(t, "c1"); got != resp.Text {
		t.Errorf("persisted %q, want %q", got, resp.Text)
	}
	if _, ok := f.store.Peek("c1"); ok {
		t.Error("entry survived decline")
	}
}

func TestNothingPendingChangesNothing(t *testing.T) {
	f := newFixture(t)
	resp, err := f.resolver.Confirm(context.Background(), "c1", true, anchorCall)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if resp.Text != TextNothingPending {
		t.Errorf("Text = %q", resp.Text)
	}
	turns, _ := f.history.GetMessages(context.Background(), "c1", 0)
	if len(turns) != 0 {
		t.Errorf("nothing-pending recorded %d turns", len(turns))
	}
}

func TestToolNoLongerAvailable(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Set("c1", deleteGeneral)
	f.reg.UnregisterOwner("moderation")

	resp, err := f.resolver.Confirm(context.Background(), "c1", true, anchorCall)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	want := "Cannot complete delete the #general channel: tool delete_channel is no longer available."
	if resp.Text != want {
		t.Errorf("Text = %q, want %q", resp.Text, want)
	}
	if _, ok := f.store.Peek("c1"); ok {
		t.Error("entry survived")
	}
}

func TestHandlerFailure(t *testing.T) {
	f := newFixture(t)
	_ = f.store.Set("c1", api.PendingConfirmation{ToolName: "ban_user", Description: "ban @mallory"})

	resp, err := f.resolver.Confirm(context.Background(), "c1", true, anchorCall)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !strings.HasPrefix(resp.Text, "Failed to complete ban @mallory: ") || !strings.Contains(resp.Text, "user is a moderator") {
		t.Errorf("Text = %q", resp.Text)
	}
	if len(resp.ToolResults) != 1 || resp.ToolResults[0].Error == "" {
		t.Errorf("ToolResults = %+v, want one error entry", resp.ToolResults)
	}
}

func TestSetPolicies(t *testing.T) {
	other := api.PendingConfirmation{ToolName: "ban_user", Description: "ban"}

	t.Run("overwrite", func(t *testing.T) {
		s := NewStore()
		_ = s.Set("c1", deleteGeneral)
		if err := s.Set("c1", other); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, _ := s.Peek("c1")
		if got.ToolName != "ban_user" {
			t.Errorf("pending = %s, want ban_user", got.ToolName)
		}
	})

	t.Run("reject", func(t *testing.T) {
		s := NewStore(WithPolicy(PolicyReject))
		_ = s.Set("c1", deleteGeneral)
		if err := s.Set("c1", other); !errors.Is(err, ErrAlreadyPending) {
			t.Fatalf("Set error = %v, want ErrAlreadyPending", err)
		}
		got, _ := s.Peek("c1")
		if got.ToolName != "delete_channel" {
			t.Errorf("pending = %s, want delete_channel kept", got.ToolName)
		}
		s.Take("c1")
		if err := s.Set("c1", other); err != nil {
			t.Errorf("Set after Take: %v", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		s := NewStore()
		if err := s.Set("", deleteGeneral); !errors.Is(err, ErrInvalidConfirmation) {
			t.Errorf("empty conversation: %v", err)
		}
		if err := s.Set("c1", api.PendingConfirmation{}); !errors.Is(err, ErrInvalidConfirmation) {
			t.Errorf("empty tool: %v", err)
		}
	})
}

func TestConversationsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		conv := fmt.Sprintf("c%d", i)
		_ = f.store.Set(conv, deleteGeneral)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.resolver.Confirm(ctx, conv, true, anchorCall); err != nil {
				t.Errorf("Confirm(%s): %v", conv, err)
			}
		}()
	}
	wg.Wait()

	if f.invocations() != 20 {
		t.Errorf("invocations = %d, want 20", f.invocations())
	}
}

type failingHistory struct{}

func (failingHistory) AddMessage(context.Context, string, api.Role, string) error {
	return errors.New("disk full")
}

func TestHistoryFailureIsReturned(t *testing.T) {
	store := NewStore()
	reg := registry.New()
	_ = store.Set("c1", deleteGeneral)

	r := NewResolver(store, reg, router.New(reg), failingHistory{}, nil)
	if _, err := r.Confirm(context.Background(), "c1", false, anchorCall); err == nil {
		t.Fatal("expected history error")
	}
}
