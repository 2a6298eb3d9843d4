// Package http serves the conversation engine over a JSON HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/auth"
	"github.com/rhuss/steward/pkg/observability"
	"github.com/rhuss/steward/pkg/permission"
	"github.com/rhuss/steward/pkg/tools"
	"github.com/rhuss/steward/pkg/transport"
)

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// HealthCheck backs GET /healthz. Nil always reports healthy.
	HealthCheck func(ctx context.Context) error

	// DisableMetrics removes GET /metrics.
	DisableMetrics bool

	// HistoryLevel is the tier needed to read a conversation transcript.
	// A conversation may carry callers of every tier, so the default is
	// anchor.
	HistoryLevel permission.Level
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{MaxBodySize: 1 << 20, HistoryLevel: permission.Anchor}
}

// Adapter routes HTTP requests to a transport.Service.
type Adapter struct {
	svc      transport.Service
	chat     transport.ChatHandler
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
	logger   *slog.Logger
}

// NewAdapter creates an adapter for svc. Chat turns pass through
// middlewares in the given order.
func NewAdapter(svc transport.Service, cfg Config, logger *slog.Logger, middlewares ...transport.Middleware) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	cfg.HistoryLevel = cfg.HistoryLevel.VisibilityOrDefault()
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		svc:      svc,
		chat:     transport.Chain(middlewares...)(transport.ServiceChat(svc)),
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
		logger:   logger,
	}

	a.mux.HandleFunc("POST /v1/conversations/{id}/messages", a.handleChat)
	a.mux.HandleFunc("GET /v1/conversations/{id}/messages", a.handleHistory)
	a.mux.HandleFunc("DELETE /v1/conversations/{id}/turn", a.handleCancelTurn)
	a.mux.HandleFunc("PUT /v1/conversations/{id}/confirmation", a.handleSetConfirmation)
	a.mux.HandleFunc("POST /v1/conversations/{id}/confirmation", a.handleConfirm)
	a.mux.HandleFunc("GET /v1/tools", a.handleListTools)
	a.mux.HandleFunc("GET /v1/resources", a.handleListResources)
	a.mux.HandleFunc("GET /v1/resources/read", a.handleReadResource)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	if !cfg.DisableMetrics {
		a.mux.Handle("GET /metrics", promhttp.Handler())
	}
	return a
}

// Handler returns the adapter's http.Handler. Authentication wraps it from
// the outside.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// InFlight exposes the registry of running turns.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware takes X-Request-ID from the request, or assigns
// one, and echoes it on the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// callContext builds the per-call metadata from the authenticated caller.
// The tier never comes from the request body.
func callContext(r *http.Request, channelID, channelName, userID string) tools.CallContext {
	id := auth.IdentityFromContext(r.Context())
	if userID == "" && id != nil {
		userID = id.Subject
	}
	return tools.CallContext{
		Level:          id.Level(),
		ConversationID: r.PathValue("id"),
		ChannelID:      channelID,
		ChannelName:    channelName,
		Interface:      tools.InterfaceHTTP,
		UserID:         userID,
	}
}

func (a *Adapter) handleChat(w http.ResponseWriter, r *http.Request) {
	var body api.ChatRequest
	if !a.decode(w, r, &body) {
		return
	}

	conversationID := r.PathValue("id")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	release := a.inflight.Register(conversationID, cancel)
	defer release()

	resp, err := a.chat.Chat(ctx, &transport.ChatRequest{
		ConversationID: conversationID,
		Message:        body.Message,
		Call:           callContext(r, body.ChannelID, body.ChannelName, body.UserID),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() == nil {
			transport.WriteAPIError(w, &api.APIError{
				Type:    api.ErrorTypeConflict,
				Code:    "cancelled",
				Message: "turn was cancelled",
			})
			return
		}
		a.writeError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resp)
}

func (a *Adapter) handleCancelTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if !permission.HasPermission(auth.LevelFromContext(r.Context()), permission.Trusted) {
		transport.WriteAPIError(w, api.NewForbiddenError("cancelling turns requires the trusted tier"))
		return
	}
	if n := a.inflight.Cancel(conversationID); n == 0 {
		transport.WriteAPIError(w, api.NewNotFoundError("no turn in flight for conversation "+conversationID))
		return
	}
	a.logger.Info("turn cancelled", "conversation_id", conversationID, "request_id", transport.RequestIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !permission.HasPermission(auth.LevelFromContext(r.Context()), a.config.HistoryLevel) {
		transport.WriteAPIError(w, api.NewForbiddenError(
			fmt.Sprintf("reading conversation history requires the %s tier", a.config.HistoryLevel)))
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	turns, err := a.svc.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if turns == nil {
		turns = []api.Turn{}
	}
	transport.WriteJSON(w, http.StatusOK, api.List[api.Turn]{Object: "list", Data: turns})
}

func (a *Adapter) handleSetConfirmation(w http.ResponseWriter, r *http.Request) {
	if !permission.HasPermission(auth.LevelFromContext(r.Context()), permission.Anchor) {
		transport.WriteAPIError(w, api.NewForbiddenError("setting a pending confirmation requires the anchor tier"))
		return
	}
	var body api.PendingConfirmation
	if !a.decode(w, r, &body) {
		return
	}
	if body.ToolName == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("tool_name", "tool_name is required"))
		return
	}
	if body.Description == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("description", "description is required"))
		return
	}
	if !api.ValidateConversationID(r.PathValue("id")) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("conversation_id", "malformed conversation id"))
		return
	}

	if err := a.svc.SetPendingConfirmation(r.PathValue("id"), body); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body api.ConfirmRequest
	if !a.decode(w, r, &body) {
		return
	}
	if !api.ValidateConversationID(r.PathValue("id")) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("conversation_id", "malformed conversation id"))
		return
	}

	call := callContext(r, "", "", "")
	resp, err := a.svc.ConfirmPendingAction(r.Context(), r.PathValue("id"), body.Confirmed, &call)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resp)
}

func (a *Adapter) handleListTools(w http.ResponseWriter, r *http.Request) {
	entries := a.svc.ListToolsForLevel(auth.LevelFromContext(r.Context()))
	transport.WriteJSON(w, http.StatusOK, api.List[api.ToolInfo]{Object: "list", Data: transport.ToolInfos(entries)})
}

func (a *Adapter) handleListResources(w http.ResponseWriter, r *http.Request) {
	if !permission.HasPermission(auth.LevelFromContext(r.Context()), permission.DefaultVisibility) {
		transport.WriteAPIError(w, api.NewForbiddenError("listing resources requires the anchor tier"))
		return
	}
	entries := a.svc.ListResources()
	transport.WriteJSON(w, http.StatusOK, api.List[api.ResourceInfo]{Object: "list", Data: transport.ResourceInfos(entries)})
}

func (a *Adapter) handleReadResource(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("uri", "uri is required"))
		return
	}
	content, err := a.svc.ReadResource(r.Context(), uri, callContext(r, "", "", ""))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, content)
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.config.HealthCheck != nil {
		if err := a.config.HealthCheck(r.Context()); err != nil {
			a.logger.Warn("health check failed", "error", err)
			transport.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v. It writes the error response and
// returns false when the body cannot be used.
func (a *Adapter) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType)
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func (a *Adapter) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := transport.ToAPIError(err)
	if transport.HTTPStatusFromError(apiErr) >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", transport.RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	transport.WriteAPIError(w, apiErr)
}
