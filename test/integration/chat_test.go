package integration

import (
	"net/http"
	"slices"
	"strings"
	"testing"
)

func TestChatPlainReply(t *testing.T) {
	reply := chat(t, anchorKey, "plain-1", "hello there")

	if reply["text"] != "You said: hello there" {
		t.Errorf("text = %v", reply["text"])
	}
	if reply["conversation_id"] != "plain-1" {
		t.Errorf("conversation_id = %v", reply["conversation_id"])
	}

	resp := doRequest(t, http.MethodGet, "/v1/conversations/plain-1/messages", anchorKey, nil)
	defer resp.Body.Close()
	var history struct {
		Data []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &history)
	if len(history.Data) != 2 {
		t.Fatalf("history has %d turns, want 2", len(history.Data))
	}
	if history.Data[0].Role != "user" || history.Data[1].Content != "You said: hello there" {
		t.Errorf("history = %+v", history.Data)
	}
}

func TestChatToolsByTier(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		message   string
		wantTools []string
		wantText  string
	}{
		{"public local tool", publicKey, `call echo {"text":"hi"}`, []string{"echo"}, "Done: hi"},
		{"trusted tool hidden from public", publicKey, "call member_lookup", nil, "I cannot use member_lookup here."},
		{"trusted local tool", trustedKey, "call member_lookup", []string{"member_lookup"}, "Done: member since 2020"},
		{"remote tool hidden from public", publicKey, `call remote_echo {"message":"x"}`, nil, "I cannot use remote_echo here."},
		{"remote tool over the bus", trustedKey, `call remote_echo {"message":"x"}`, []string{"remote_echo"}, "Done: remote: x"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := chat(t, tt.token, "tier-"+string(rune('a'+i)), tt.message)
			if got := toolNames(reply); !slices.Equal(got, tt.wantTools) {
				t.Errorf("tool results = %v, want %v", got, tt.wantTools)
			}
			if reply["text"] != tt.wantText {
				t.Errorf("text = %v, want %q", reply["text"], tt.wantText)
			}
		})
	}
}

func TestChatInvalidArgumentsReported(t *testing.T) {
	reply := chat(t, publicKey, "bad-args", `call echo {"wrong":1}`)

	results, _ := reply["tool_results"].([]any)
	if len(results) != 1 {
		t.Fatalf("tool_results = %v", reply["tool_results"])
	}
	entry := results[0].(map[string]any)
	if msg, _ := entry["error"].(string); msg == "" {
		t.Errorf("expected an error entry, got %v", entry)
	}
}

func TestDestructiveToolNeedsConfirmation(t *testing.T) {
	before := testEnv.Local.deleted.Load()

	reply := chat(t, anchorKey, "destroy-1", `call delete_channel {"channel":"general"}`)
	pending, ok := reply["pending_confirmation"].(map[string]any)
	if !ok {
		t.Fatalf("no pending_confirmation in %v", reply)
	}
	if pending["tool_name"] != "delete_channel" {
		t.Errorf("pending tool = %v", pending["tool_name"])
	}
	if desc, _ := pending["description"].(string); !strings.HasPrefix(desc, "run delete_channel with") {
		t.Errorf("description = %q", desc)
	}
	if testEnv.Local.deleted.Load() != before {
		t.Fatal("destructive tool ran before confirmation")
	}

	resp := doRequest(t, http.MethodPost, "/v1/conversations/destroy-1/confirmation", anchorKey, map[string]any{"confirmed": true})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var confirmed map[string]any
	decodeJSON(t, resp, &confirmed)
	if text, _ := confirmed["text"].(string); !strings.HasPrefix(text, "Completed: run delete_channel") {
		t.Errorf("confirm text = %q", text)
	}
	if testEnv.Local.deleted.Load() != before+1 {
		t.Errorf("deleted = %d, want %d", testEnv.Local.deleted.Load(), before+1)
	}

	// The confirmation is consumed.
	again := doRequest(t, http.MethodPost, "/v1/conversations/destroy-1/confirmation", anchorKey, map[string]any{"confirmed": true})
	defer again.Body.Close()
	var second map[string]any
	decodeJSON(t, again, &second)
	if second["text"] != "There is no pending action to confirm." {
		t.Errorf("second confirm text = %v", second["text"])
	}
	if testEnv.Local.deleted.Load() != before+1 {
		t.Error("destructive tool ran twice")
	}
}

func TestDeclinedConfirmation(t *testing.T) {
	before := testEnv.Local.deleted.Load()
	chat(t, anchorKey, "destroy-2", `call delete_channel {"channel":"random"}`)

	resp := doRequest(t, http.MethodPost, "/v1/conversations/destroy-2/confirmation", anchorKey, map[string]any{"confirmed": false})
	defer resp.Body.Close()
	var out map[string]any
	decodeJSON(t, resp, &out)
	if text, _ := out["text"].(string); !strings.HasPrefix(text, "Action cancelled:") {
		t.Errorf("text = %q", text)
	}
	if testEnv.Local.deleted.Load() != before {
		t.Error("declined action ran")
	}
}

func TestPendingActionStaysWithAnchor(t *testing.T) {
	before := testEnv.Local.deleted.Load()
	chat(t, anchorKey, "destroy-3", `call delete_channel {"channel":"ops"}`)

	for _, token := range []string{publicKey, trustedKey} {
		resp := doRequest(t, http.MethodPost, "/v1/conversations/destroy-3/confirmation", token, map[string]any{"confirmed": true})
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s confirm status = %d, want 403", token, resp.StatusCode)
		}
	}
	if testEnv.Local.deleted.Load() != before {
		t.Fatal("lower tier confirmed the anchor's action")
	}

	resp := doRequest(t, http.MethodGet, "/v1/conversations/destroy-3/messages", publicKey, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("public history status = %d, want 403", resp.StatusCode)
	}

	reply := chat(t, publicKey, "destroy-3", "hello")
	if _, ok := reply["pending_confirmation"]; ok {
		t.Errorf("public caller sees the anchor's pending action: %v", reply["pending_confirmation"])
	}

	resp = doRequest(t, http.MethodPost, "/v1/conversations/destroy-3/confirmation", anchorKey, map[string]any{"confirmed": true})
	defer resp.Body.Close()
	var out map[string]any
	decodeJSON(t, resp, &out)
	if text, _ := out["text"].(string); !strings.HasPrefix(text, "Completed: run delete_channel") {
		t.Errorf("anchor confirm text = %q", text)
	}
	if testEnv.Local.deleted.Load() != before+1 {
		t.Error("anchor confirmation did not run the action")
	}
}

func TestSetPendingConfirmationRequiresAnchor(t *testing.T) {
	body := map[string]any{"tool_name": "delete_channel", "description": "delete #ops"}

	resp := doRequest(t, http.MethodPut, "/v1/conversations/manual-1/confirmation", trustedKey, body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("trusted status = %d, want 403", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, "/v1/conversations/manual-1/confirmation", anchorKey, body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("anchor status = %d, want 204", resp.StatusCode)
	}

	before := testEnv.Local.deleted.Load()
	resp = doRequest(t, http.MethodPost, "/v1/conversations/manual-1/confirmation", anchorKey, map[string]any{"confirmed": true})
	defer resp.Body.Close()
	var out map[string]any
	decodeJSON(t, resp, &out)
	if text, _ := out["text"].(string); !strings.HasPrefix(text, "Completed: delete #ops") {
		t.Errorf("text = %q", text)
	}
	if testEnv.Local.deleted.Load() != before+1 {
		t.Error("confirmed action did not run")
	}
}

func TestListToolsByTier(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{publicKey, []string{"echo"}},
		{trustedKey, []string{"echo", "member_lookup", "remote_echo"}},
		{anchorKey, []string{"echo", "member_lookup", "delete_channel", "wait", "remote_echo"}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, "/v1/tools", tt.token, nil)
			defer resp.Body.Close()
			var list struct {
				Data []struct {
					Name string `json:"name"`
				} `json:"data"`
			}
			decodeJSON(t, resp, &list)

			var got []string
			for _, tool := range list.Data {
				got = append(got, tool.Name)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("tools = %v, want %v", got, tt.want)
			}
		})
	}
}
