package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/nodekeeper/internal/model"
	"github.com/seantiz/nodekeeper/internal/notifier"
	"github.com/seantiz/nodekeeper/internal/store"
)

// createDependentRequest is the JSON body for POST /v1/dependents.
type createDependentRequest struct {
	URL string `json:"url"`
}

// dependentResponse is a dependent as returned by the API.
type dependentResponse struct {
	*model.Dependent
	ManagementSurface bool `json:"management_surface"`
}

type listDependentsResponse struct {
	Dependents []dependentResponse `json:"dependents"`
}

func newDependentResponse(d *model.Dependent) dependentResponse {
	return dependentResponse{
		Dependent:         d,
		ManagementSurface: notifier.IsManagementSurface(d.URL),
	}
}

func (s *Server) handleCreateDependent(w http.ResponseWriter, r *http.Request) {
	var req createDependentRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	d := &model.Dependent{
		ID:        model.NewID(),
		URL:       req.URL,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateDependent(r.Context(), d); err != nil {
		s.logger.Error("create dependent", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create dependent")
		return
	}

	s.writeJSON(w, http.StatusCreated, newDependentResponse(d))
}

func (s *Server) handleListDependents(w http.ResponseWriter, r *http.Request) {
	deps, err := s.store.ListDependents(r.Context())
	if err != nil {
		s.logger.Error("list dependents", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list dependents")
		return
	}

	resp := listDependentsResponse{Dependents: make([]dependentResponse, 0, len(deps))}
	for _, d := range deps {
		resp.Dependents = append(resp.Dependents, newDependentResponse(d))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDependent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.dependentID(w, r)
	if !ok {
		return
	}

	d, err := s.store.GetDependent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "dependent not found")
		return
	}
	if err != nil {
		s.logger.Error("get dependent", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get dependent")
		return
	}

	s.writeJSON(w, http.StatusOK, newDependentResponse(d))
}

func (s *Server) handleDeleteDependent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.dependentID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteDependent(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "dependent not found")
			return
		}
		s.logger.Error("delete dependent", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete dependent")
		return
	}
	s.host.Forget(id)

	w.WriteHeader(http.StatusNoContent)
}

// dependentID returns the {id} URL parameter. Malformed IDs cannot name a
// stored dependent, so they get a 404 without a store lookup.
func (s *Server) dependentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !model.ValidID(id) {
		s.writeError(w, http.StatusNotFound, "dependent not found")
		return "", false
	}
	return id, true
}
