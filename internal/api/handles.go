package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/catalog"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/manager"
	"github.com/zjrosen/algomgr/internal/registry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	maxBodySize      = 1 << 20 // 1 MB
)

// createHandleRequest is the JSON body for POST /v1/handles.
type createHandleRequest struct {
	Name       string            `json:"name"`
	Version    *int              `json:"version"`
	Proxy      *bool             `json:"proxy"`
	Properties map[string]string `json:"properties"`
}

type handleView struct {
	ID         uint64            `json:"id"`
	Name       string            `json:"name"`
	Version    int               `json:"version"`
	Category   string            `json:"category"`
	Kind       string            `json:"kind"`
	State      string            `json:"state"`
	Running    bool              `json:"running"`
	Executed   bool              `json:"executed"`
	LastRunID  string            `json:"last_run_id,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	Properties map[string]string `json:"properties"`
}

func viewOf(h manager.Handle) handleView {
	v := handleView{
		ID:         uint64(h.ID()),
		Name:       h.Name(),
		Version:    h.Version(),
		Category:   h.Category(),
		Kind:       h.Kind().String(),
		State:      h.State().String(),
		Running:    h.IsRunning(),
		Executed:   h.IsExecuted(),
		LastRunID:  h.LastRunID(),
		Properties: h.Properties().Values(),
	}
	if err := h.LastError(); err != nil {
		v.LastError = err.Error()
	}
	return v
}

func viewsOf(hs []manager.Handle) []handleView {
	out := make([]handleView, 0, len(hs))
	for _, h := range hs {
		out = append(out, viewOf(h))
	}
	return out
}

type algorithmView struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Versions []int  `json:"versions"`
}

type executeResponse struct {
	ID    uint64 `json:"id"`
	RunID string `json:"run_id"`
}

func (s *Server) handleListAlgorithms(w http.ResponseWriter, _ *http.Request) {
	names := s.mgr.NamesAndCategories()
	out := make([]algorithmView, 0, len(names))
	for _, nc := range names {
		out = append(out, algorithmView{
			Name:     nc.Name,
			Category: nc.Category,
			Versions: s.mgr.Catalog().Versions(nc.Name),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateHandle(w http.ResponseWriter, r *http.Request) {
	var req createHandleRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	version := catalog.LatestVersion
	if req.Version != nil {
		version = *req.Version
	}
	proxy := req.Proxy == nil || *req.Proxy

	h, err := s.mgr.Create(req.Name, version, manager.WithProxy(proxy), manager.WithProperties(req.Properties))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, viewOf(h))
}

func (s *Server) handleListHandles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewsOf(s.mgr.Handles()))
}

func (s *Server) handleClearHandles(w http.ResponseWriter, _ *http.Request) {
	s.mgr.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetHandle(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(h))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := h.Properties().Validate(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	// The run outlives the request.
	res := h.ExecuteAsync(context.WithoutCancel(r.Context()))
	if err := res.Err(); errors.Is(err, algorithm.ErrAlreadyRunning) {
		writeError(w, statusFor(err), err.Error())
		return
	}

	log.Debug(log.CatAPI, "Run dispatched", "handle", h.ID(), "run", h.LastRunID())
	writeJSON(w, http.StatusAccepted, executeResponse{ID: uint64(h.ID()), RunID: h.LastRunID()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	h.Cancel()
	writeJSON(w, http.StatusAccepted, viewOf(h))
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(s.mgr.RunningInstancesOf(name)))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run journal is disabled")
		return
	}
	limit := parseIntQuery(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		log.ErrorErr(log.CatAPI, "List runs failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHandleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run journal is disabled")
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid handle id")
		return
	}

	entries, err := s.history.ForHandle(r.Context(), id)
	if err != nil {
		log.ErrorErr(log.CatAPI, "List handle runs failed", err, "handle", id)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// lookup resolves the {id} URL parameter to a retained handle, writing the
// error response itself when it cannot.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (manager.Handle, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid handle id")
		return nil, false
	}
	h, ok := s.mgr.GetAlgorithm(algorithm.HandleID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "handle not found")
		return nil, false
	}
	return h, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, algorithm.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrUnknownVersion),
		errors.Is(err, algorithm.ErrUnknownProperty),
		errors.Is(err, algorithm.ErrMissingProperty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
