package api

import (
	"net/http"

	"github.com/seantiz/nodekeeper/internal/model"
)

// listTransitionsResponse wraps the paginated list response.
type listTransitionsResponse struct {
	Transitions []*model.TransitionRecord `json:"transitions"`
	Total       int                       `json:"total"`
	Limit       int                       `json:"limit"`
	Offset      int                       `json:"offset"`
}

func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	recs, total, err := s.store.ListTransitions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list transitions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list transitions")
		return
	}

	if recs == nil {
		recs = []*model.TransitionRecord{}
	}

	s.writeJSON(w, http.StatusOK, listTransitionsResponse{
		Transitions: recs,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	})
}
