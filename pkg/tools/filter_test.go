package tools

import (
	"strings"
	"testing"
)

func TestFilterCalls(t *testing.T) {
	tests := []struct {
		name         string
		calls        []Call
		active       []string
		wantAllowed  int
		wantRejected int
	}{
		{
			name: "all offered",
			calls: []Call{
				{ID: "c1", Name: "get_weather"},
				{ID: "c2", Name: "search"},
			},
			active:       []string{"search", "get_weather"},
			wantAllowed:  2,
			wantRejected: 0,
		},
		{
			name: "empty active set rejects everything",
			calls: []Call{
				{ID: "c1", Name: "search"},
			},
			active:       nil,
			wantAllowed:  0,
			wantRejected: 1,
		},
		{
			name: "hallucinated tool rejected",
			calls: []Call{
				{ID: "c1", Name: "search"},
				{ID: "c2", Name: "admin_delete"},
				{ID: "c3", Name: "search"},
			},
			active:       []string{"search"},
			wantAllowed:  2,
			wantRejected: 1,
		},
		{
			name:         "no calls",
			calls:        nil,
			active:       []string{"search"},
			wantAllowed:  0,
			wantRejected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FilterCalls(tt.calls, tt.active)
			if len(result.Allowed) != tt.wantAllowed {
				t.Errorf("allowed = %d, want %d", len(result.Allowed), tt.wantAllowed)
			}
			if len(result.Rejected) != tt.wantRejected {
				t.Errorf("rejected = %d, want %d", len(result.Rejected), tt.wantRejected)
			}
		})
	}
}

func TestFilterCallsRejectionMessage(t *testing.T) {
	result := FilterCalls([]Call{{ID: "c9", Name: "drop_table"}}, []string{"search"})
	if len(result.Rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(result.Rejected))
	}
	rej := result.Rejected[0]
	if rej.Call.ID != "c9" {
		t.Errorf("rejected call ID = %q, want c9", rej.Call.ID)
	}
	if !strings.Contains(rej.Message, "drop_table") {
		t.Errorf("rejection message %q should name the tool", rej.Message)
	}
}
