package api

import (
	"net/http"

	"github.com/seantiz/nodekeeper/internal/backend"
)

// backendResponse is one entry of GET /v1/backends. Active marks the kind
// currently holding the slot.
type backendResponse struct {
	backend.BackendInfo
	Active bool `json:"active"`
}

func (s *Server) handleListBackends(w http.ResponseWriter, _ *http.Request) {
	st := s.supervisor.Status()
	infos := s.registry.List()

	resp := make([]backendResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, backendResponse{
			BackendInfo: info,
			Active:      st.Active && st.Kind == info.Kind,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}
