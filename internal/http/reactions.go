package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
)

type reactionRequest struct {
	ReactionType string `json:"reaction_type" validate:"required,oneof=like love haha wow sad"`
}

type reactionSummaryResponse struct {
	Success bool `json:"success"`
	domain.ReactionSummary
}

// reactionRoutes mounts the reaction endpoints of a comment or photo. param
// names the URL parameter carrying the target id.
func (s *Server) reactionRoutes(r chi.Router, param string, repo *repository.ReactionsRepository) {
	r.Get("/reactions", func(w http.ResponseWriter, r *http.Request) {
		s.respondReactionSummary(w, r, repo, urlParam(r, param), s.optionalUser(r))
	})

	r.With(s.requireAuth).Put("/reactions", func(w http.ResponseWriter, r *http.Request) {
		var req reactionRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}
		target, user := urlParam(r, param), currentUser(r)
		if err := repo.Set(r.Context(), target, user, req.ReactionType); err != nil {
			s.respondRepoError(w, r, err, "save reaction")
			return
		}
		s.respondReactionSummary(w, r, repo, target, user)
	})

	r.With(s.requireAuth).Delete("/reactions", func(w http.ResponseWriter, r *http.Request) {
		target, user := urlParam(r, param), currentUser(r)
		if err := repo.Remove(r.Context(), target, user); err != nil {
			s.respondRepoError(w, r, err, "remove reaction")
			return
		}
		s.respondReactionSummary(w, r, repo, target, user)
	})
}

func (s *Server) respondReactionSummary(w http.ResponseWriter, r *http.Request, repo *repository.ReactionsRepository, targetID, userID string) {
	summary, err := repo.Summary(r.Context(), targetID, userID)
	if err != nil {
		s.respondRepoError(w, r, err, "fetch reactions")
		return
	}
	s.respondJSON(w, http.StatusOK, reactionSummaryResponse{Success: true, ReactionSummary: summary})
}
