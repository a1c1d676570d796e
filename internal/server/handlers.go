package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/burnssa/superjective-extension/internal/audit"
	"github.com/burnssa/superjective-extension/internal/auth"
	"github.com/burnssa/superjective-extension/internal/drafts"
	"github.com/burnssa/superjective-extension/internal/observability"
	"github.com/burnssa/superjective-extension/internal/privacy"
	"github.com/burnssa/superjective-extension/internal/websocket"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// textRequest uses a pointer so that a JSON null passes through unchanged
type textRequest struct {
	Text *string `json:"text"`
}

type filterResponse struct {
	Text     *string        `json:"text"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Changed  bool           `json:"changed"`
	Degraded bool           `json:"degraded,omitempty"`
	Cached   bool           `json:"cached,omitempty"`
}

type summaryRequest struct {
	Original *string `json:"original"`
	Filtered *string `json:"filtered"`
}

type containsResponse struct {
	ContainsPII bool `json:"containsPII"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == nil {
		writeJSON(w, http.StatusOK, filterResponse{Counts: map[string]int{}})
		return
	}

	start := time.Now()
	result, cached := s.process(r.Context(), *req.Text)
	counts := result.CountsByName()

	s.record(r.Context(), "http", result, counts)
	if s.deps.Hub != nil && result.Total > 0 {
		requestID := getRequestID(r.Context())
		s.deps.Hub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeRedaction,
			RequestID: requestID,
			Data: websocket.RedactionEvent{
				RequestID:    requestID,
				Route:        "/v1/filter",
				Counts:       counts,
				Total:        result.Total,
				Degraded:     result.Degraded,
				Cached:       cached,
				ProcessingMS: float64(time.Since(start).Microseconds()) / 1000,
			},
		})
	}

	writeJSON(w, http.StatusOK, filterResponse{
		Text:     &result.Text,
		Counts:   counts,
		Total:    result.Total,
		Changed:  result.Changed,
		Degraded: result.Degraded,
		Cached:   cached,
	})
}

// process consults the cache before running the engine
func (s *Server) process(ctx context.Context, text string) (privacy.Result, bool) {
	ctx, span := s.deps.Tracer.Start(ctx, "piifilter.filter")
	defer span.End()

	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(ctx, text); ok {
			span.SetAttributes(observability.RedactionAttributes(len(text), cached.CountsByName(), cached.Total, cached.Degraded)...)
			return *cached, true
		}
	}

	result := s.deps.Engine.Process(ctx, text)
	span.SetAttributes(observability.RedactionAttributes(len(text), result.CountsByName(), result.Total, result.Degraded)...)

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Store(ctx, text, result); err != nil {
			s.logger.Warn("Failed to cache result",
				zap.String("request_id", getRequestID(ctx)),
				zap.Error(err))
		}
	}
	return result, false
}

// record writes finding counts to the audit store if one is configured
func (s *Server) record(ctx context.Context, source string, result privacy.Result, counts map[string]int) {
	if s.deps.Audit == nil || result.Total == 0 {
		return
	}
	err := s.deps.Audit.Record(ctx, audit.Finding{
		RequestID: getRequestID(ctx),
		Source:    source,
		Counts:    counts,
		Degraded:  result.Degraded,
	})
	if err != nil {
		s.logger.Warn("Failed to record finding",
			zap.String("request_id", getRequestID(ctx)),
			zap.Error(err))
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !s.decode(w, r, &req) {
		return
	}
	var original, filtered string
	if req.Original != nil {
		original = *req.Original
	}
	if req.Filtered != nil {
		filtered = *req.Filtered
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.Summary(original, filtered))
}

func (s *Server) handleContains(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	found := req.Text != nil && s.deps.Engine.ContainsPII(*req.Text)
	writeJSON(w, http.StatusOK, containsResponse{ContainsPII: found})
}

func (s *Server) handleGenerateDrafts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "drafts service not configured")
		return
	}
	var req drafts.GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}

	set, err := s.deps.Drafts.GenerateDrafts(r.Context(), req)
	if err != nil {
		s.writeDraftsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleCompleteDrafts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "drafts service not configured")
		return
	}
	var req drafts.CompleteRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.ComparisonID = drafts.ID(mux.Vars(r)["id"])

	out, err := s.deps.Drafts.CompleteDrafts(r.Context(), req)
	if err != nil {
		s.writeDraftsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeDraftsError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *drafts.APIError
	switch {
	case errors.Is(err, drafts.ErrNoText):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	default:
		s.logger.Error("Drafts request failed",
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "drafts service unavailable")
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":       "piifilter",
		"version":    s.deps.Version,
		"rules":      s.deps.Engine.Rules(),
		"recognizer": s.deps.Recognizer,
		"cache":      s.deps.Cache != nil,
		"audit":      s.deps.Audit != nil,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Hub != nil {
		info["websocket"] = s.deps.Hub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
