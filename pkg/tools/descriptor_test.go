package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rhuss/steward/pkg/permission"
)

func noopHandler() Handler {
	return HandlerFunc(func(context.Context, json.RawMessage, CallContext) (*Result, error) {
		return TextResult("ok"), nil
	})
}

func TestToolDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    ToolDescriptor
		wantErr bool
	}{
		{"local with handler", ToolDescriptor{Name: "search", Handler: noopHandler()}, false},
		{"remote without handler", ToolDescriptor{Name: "search", Kind: KindRemote}, false},
		{"empty name", ToolDescriptor{Handler: noopHandler()}, true},
		{"local without handler", ToolDescriptor{Name: "search"}, true},
		{"unknown visibility", ToolDescriptor{Name: "search", Handler: noopHandler(), Visibility: "root"}, true},
		{"explicit visibility", ToolDescriptor{Name: "search", Handler: noopHandler(), Visibility: permission.Public}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("error %v should wrap ErrInvalidDescriptor", err)
			}
		})
	}
}

func TestResourceDescriptorValidate(t *testing.T) {
	reader := func(context.Context, string, CallContext) (*ResourceContent, error) { return nil, nil }

	if err := (ResourceDescriptor{URI: "entity://notes", Read: reader}).Validate(); err != nil {
		t.Errorf("valid resource: %v", err)
	}
	if err := (ResourceDescriptor{URI: "entity://notes", Kind: KindRemote}).Validate(); err != nil {
		t.Errorf("remote resource: %v", err)
	}
	if err := (ResourceDescriptor{Read: reader}).Validate(); err == nil {
		t.Error("empty uri: expected error")
	}
	if err := (ResourceDescriptor{URI: "entity://notes"}).Validate(); err == nil {
		t.Error("local resource without reader: expected error")
	}
}

func TestResultString(t *testing.T) {
	if got := TextResult("hello").String(); got != "hello" {
		t.Errorf("text result = %q", got)
	}
	r, err := JSONResult(map[string]int{"count": 2})
	if err != nil {
		t.Fatalf("JSONResult: %v", err)
	}
	if got := r.String(); got != `{"count":2}` {
		t.Errorf("json result = %q", got)
	}
	if got := (&Result{Blob: []byte{0xff, 0x00}}).String(); got != "/wA=" {
		t.Errorf("blob result = %q", got)
	}
	var nilResult *Result
	if got := nilResult.String(); got != "" {
		t.Errorf("nil result = %q", got)
	}
}

func TestCallContextReportProgress(t *testing.T) {
	var got []Progress
	call := CallContext{Progress: ProgressFunc(func(_ context.Context, p Progress) {
		got = append(got, p)
	})}

	call.ReportProgress(context.Background(), Progress{Progress: 1, Total: 3})
	if len(got) != 1 || got[0].Progress != 1 {
		t.Errorf("progress = %+v, want one update", got)
	}

	// No sink attached: must not panic.
	CallContext{}.ReportProgress(context.Background(), Progress{Progress: 1})
}

func TestHandlerError(t *testing.T) {
	cause := errors.New("disk full")
	he := NewHandlerError("save_note", cause)

	if he.Error() != "tool save_note failed: disk full" {
		t.Errorf("Error() = %q", he.Error())
	}
	if !errors.Is(he, cause) {
		t.Error("HandlerError should unwrap to cause")
	}
	if again := NewHandlerError("other", he); again != he {
		t.Error("wrapping a HandlerError twice should return the original")
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", ErrNotFound, true},
		{"forbidden wrapped", errors.Join(errors.New("ctx"), ErrForbidden), true},
		{"invalid args", ErrInvalidArguments, true},
		{"handler", &HandlerError{Tool: "x", Message: "boom"}, true},
		{"other", errors.New("backend exploded"), false},
	}
	for _, tt := range tests {
		if got := IsRecoverable(tt.err); got != tt.want {
			t.Errorf("%s: IsRecoverable = %v, want %v", tt.name, got, tt.want)
		}
	}
}
