package integration

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/rhuss/steward/pkg/api"
)

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		token       string
		contentType string
		body        string
		wantStatus  int
		wantType    api.ErrorType
	}{
		{"missing credentials", http.MethodGet, "/v1/tools", "", "", "", http.StatusUnauthorized, api.ErrorTypeInvalidRequest},
		{"unknown key", http.MethodGet, "/v1/tools", "nope", "", "", http.StatusUnauthorized, api.ErrorTypeInvalidRequest},
		{"invalid json", http.MethodPost, "/v1/conversations/e1/messages", anchorKey, "application/json", "{invalid", http.StatusBadRequest, api.ErrorTypeInvalidRequest},
		{"empty message", http.MethodPost, "/v1/conversations/e1/messages", anchorKey, "application/json", `{"message":"  "}`, http.StatusBadRequest, api.ErrorTypeInvalidRequest},
		{"unsupported content type", http.MethodPost, "/v1/conversations/e1/messages", anchorKey, "text/plain", `{"message":"hi"}`, http.StatusUnsupportedMediaType, api.ErrorTypeInvalidRequest},
		{"malformed conversation id", http.MethodPost, "/v1/conversations/bad%20id/messages", anchorKey, "application/json", `{"message":"hi"}`, http.StatusBadRequest, api.ErrorTypeInvalidRequest},
		{"bad history limit", http.MethodGet, "/v1/conversations/e1/messages?limit=zero", anchorKey, "", "", http.StatusBadRequest, api.ErrorTypeInvalidRequest},
		{"resources need anchor", http.MethodGet, "/v1/resources", trustedKey, "", "", http.StatusForbidden, api.ErrorTypeForbidden},
		{"unknown resource", http.MethodGet, "/v1/resources/read?uri=kb://missing", anchorKey, "", "", http.StatusNotFound, api.ErrorTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *bytes.Reader
			if tt.body != "" {
				body = bytes.NewReader([]byte(tt.body))
			} else {
				body = bytes.NewReader(nil)
			}
			req, err := http.NewRequest(tt.method, testEnv.BaseURL()+tt.path, body)
			if err != nil {
				t.Fatal(err)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, readBody(t, resp))
			}
			var errResp api.ErrorResponse
			decodeJSON(t, resp, &errResp)
			if errResp.Error == nil {
				t.Fatal("error object is nil")
			}
			if errResp.Error.Type != tt.wantType {
				t.Errorf("error.type = %q, want %q", errResp.Error.Type, tt.wantType)
			}
			if errResp.Error.Message == "" {
				t.Error("error.message is empty")
			}
		})
	}
}

func TestRequestIDPropagated(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, testEnv.BaseURL()+"/v1/tools", nil)
	req.Header.Set("Authorization", "Bearer "+publicKey)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", got)
	}
}
