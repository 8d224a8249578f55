package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/supervisor"
)

// nodeResponse is the JSON body for the /v1/node endpoints.
type nodeResponse struct {
	supervisor.Status
	PeerID  string `json:"peer_id,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleGetNode(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, nodeResponse{Status: s.supervisor.Status()})
}

func (s *Server) handleStartNode(w http.ResponseWriter, r *http.Request) {
	var opts backend.Options
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if opts.Kind == "" {
		s.writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	inst, err := s.supervisor.EnsureActive(r.Context(), opts)
	var initErr *backend.InitError
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrUnsupportedBackendKind):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &initErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "another node transition is in progress")
		return
	default:
		s.logger.Error("start node", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start node")
		return
	}

	resp := nodeResponse{Status: s.supervisor.Status()}
	if id, err := inst.PeerID(r.Context()); err != nil {
		s.logger.Warn("read peer id", "endpoint", inst.Endpoint(), "error", err)
	} else {
		resp.PeerID = id
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStopNode(w http.ResponseWriter, r *http.Request) {
	err := s.supervisor.EnsureInactive(r.Context())
	var destroyErr *backend.DestroyError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, nodeResponse{Status: s.supervisor.Status()})
	case errors.As(err, &destroyErr):
		// The slot is cleared regardless.
		s.writeJSON(w, http.StatusOK, nodeResponse{
			Status:  s.supervisor.Status(),
			Warning: err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "another node transition is in progress")
	default:
		s.logger.Error("stop node", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to stop node")
	}
}
