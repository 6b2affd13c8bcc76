package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"datawarden/internal/audit"
	"datawarden/internal/governance"
	"datawarden/internal/policy"
	"datawarden/internal/tools"
)

// Server exposes the governed tool pipeline over HTTP.
type Server struct {
	Middleware *governance.Middleware
	Registry   *tools.Registry
	Policy     *policy.Engine
	Audit      audit.Sink
}

func NewServer(mw *governance.Middleware, reg *tools.Registry, engine *policy.Engine, sink audit.Sink) *Server {
	return &Server{Middleware: mw, Registry: reg, Policy: engine, Audit: sink}
}

type ExecuteRequest struct {
	Tool     string         `json:"tool"`
	UserID   string         `json:"user_id"`
	TenantID string         `json:"tenant_id"`
	Args     map[string]any `json:"args"`
}

type ExecuteResponse struct {
	Result any `json:"result"`
}

type ListToolsResponse struct {
	Tools []string `json:"tools"`
}

type GrantRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Revoke   bool   `json:"revoke"`
}

type errorResponse struct {
	Error        string   `json:"error"`
	FailedPolicy string   `json:"failed_policy,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/v1/tools:execute":
		s.handleExecute(w, r)
	case "/v1/tools":
		s.handleListTools(w, r)
	case "/v1/audit":
		s.handleAudit(w, r)
	case "/v1/grants:tenant":
		s.handleGrantTenant(w, r)
	case "/v1/grants:pii":
		s.handleGrantPII(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	req.Tool = strings.TrimSpace(req.Tool)
	if req.Tool == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tool required"})
		return
	}
	reg, ok := s.Registry.Get(req.Tool)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown tool " + req.Tool})
		return
	}
	result, err := s.Middleware.Execute(r.Context(), reg.Tool, reg.Opts, governance.Request{
		UserID:   req.UserID,
		TenantID: req.TenantID,
		Args:     req.Args,
	})
	if err != nil {
		var secErr *governance.SecurityError
		switch {
		case errors.As(err, &secErr):
			writeJSON(w, http.StatusForbidden, errorResponse{
				Error:        secErr.Message,
				FailedPolicy: string(secErr.FailedPolicy),
				Suggestions:  secErr.Suggestions,
			})
		case errors.Is(err, governance.ErrInvalidArgs):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{Result: result})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, ListToolsResponse{Tools: s.Registry.Names()})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := s.Audit.ReadRecent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleGrantTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGrant(w, r)
	if !ok {
		return
	}
	if req.TenantID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant_id required"})
		return
	}
	if req.Revoke {
		s.Policy.RevokeTenant(req.UserID, req.TenantID)
	} else {
		s.Policy.GrantTenant(req.UserID, req.TenantID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGrantPII(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGrant(w, r)
	if !ok {
		return
	}
	if req.Revoke {
		s.Policy.RevokePII(req.UserID)
	} else {
		s.Policy.GrantPII(req.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) decodeGrant(w http.ResponseWriter, r *http.Request) (GrantRequest, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return GrantRequest{}, false
	}
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return GrantRequest{}, false
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id required"})
		return GrantRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "error", err)
	}
}
