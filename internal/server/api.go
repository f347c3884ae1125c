package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/entrywatch"
)

const maxRequestBody = 64 << 10

// TargetResponse is the JSON form of a target.
type TargetResponse struct {
	ID                string     `json:"id"`
	Label             string     `json:"label"`
	URL               string     `json:"url"`
	Kind              string     `json:"kind"`
	IntervalNormalSec int        `json:"interval_normal_sec"`
	IntervalHotSec    int        `json:"interval_hot_sec"`
	HotFrom           string     `json:"hot_from,omitempty"`
	HotTo             string     `json:"hot_to,omitempty"`
	LastStatus        string     `json:"last_status"`
	LastSlots         int        `json:"last_slots"`
	LastCheckedAt     *time.Time `json:"last_checked_at"`
	LastError         string     `json:"last_error,omitempty"`
	LastChangeAt      *time.Time `json:"last_change_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toResponse(t entrywatch.Target) TargetResponse {
	return TargetResponse{
		ID:                t.ID,
		Label:             t.Label,
		URL:               t.URL,
		Kind:              string(t.Kind),
		IntervalNormalSec: int(t.IntervalNormal / time.Second),
		IntervalHotSec:    int(t.IntervalHot / time.Second),
		HotFrom:           t.HotWindow.FromString(),
		HotTo:             t.HotWindow.ToString(),
		LastStatus:        string(t.LastStatus),
		LastSlots:         t.LastSlots,
		LastCheckedAt:     t.LastCheckedAt,
		LastError:         t.LastError,
		LastChangeAt:      t.LastChangeAt,
		CreatedAt:         t.CreatedAt,
	}
}

// HistoryEntryResponse is one poll result in GET /api/targets/{id}/history.
type HistoryEntryResponse struct {
	At     time.Time `json:"at"`
	Status string    `json:"status"`
	Slots  int       `json:"slots"`
	Error  string    `json:"error,omitempty"`
}

// CreateTargetRequest is the body of POST /api/targets. Omitted fields select
// the engine defaults; an interval that is present must be at least 1.
type CreateTargetRequest struct {
	Label             string            `json:"label"`
	URL               string            `json:"url"`
	Kind              string            `json:"kind"`
	IntervalNormalSec *int              `json:"interval_normal_sec,omitempty"`
	IntervalHotSec    *int              `json:"interval_hot_sec,omitempty"`
	HotFrom           string            `json:"hot_from"`
	HotTo             string            `json:"hot_to"`
	Headers           map[string]string `json:"headers"`
	DedupKey          string            `json:"dedup_key"`
}

func (req CreateTargetRequest) spec() (entrywatch.TargetSpec, error) {
	var opts []entrywatch.TargetOption
	if req.Kind != "" {
		opts = append(opts, entrywatch.WithKind(entrywatch.Kind(req.Kind)))
	}
	if req.IntervalNormalSec != nil {
		opts = append(opts, entrywatch.WithInterval(time.Duration(*req.IntervalNormalSec)*time.Second))
	}
	if req.IntervalHotSec != nil {
		opts = append(opts, entrywatch.WithHotInterval(time.Duration(*req.IntervalHotSec)*time.Second))
	}
	if req.HotFrom != "" || req.HotTo != "" {
		opts = append(opts, entrywatch.WithHotWindow(req.HotFrom, req.HotTo))
	}
	for k, v := range req.Headers {
		opts = append(opts, entrywatch.WithHeaders(k, v))
	}
	if req.DedupKey != "" {
		opts = append(opts, entrywatch.WithDedupKey(req.DedupKey))
	}
	return entrywatch.NewTarget(req.Label, req.URL, opts...)
}

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleListTargets(w http.ResponseWriter, _ *http.Request) {
	targets := s.engine.ListTargets()
	out := make([]TargetResponse, len(targets))
	for i, t := range targets {
		out[i] = toResponse(t)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req CreateTargetRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	spec, err := req.spec()
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.engine.AddTarget(r.Context(), spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toResponse(t))
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.GetTarget(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(t))
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	removed, err := s.engine.DeleteTarget(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	n := 0
	if removed {
		n = 1
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleTargetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = n
	}

	entries, err := s.engine.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryResponse{At: e.At, Status: string(e.Status), Slots: e.Slots, Error: e.Error}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// writeError maps engine errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *entrywatch.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, entrywatch.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("admin request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
