package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

type commentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type commentResponse struct {
	ID         string    `json:"id"`
	PlaceID    string    `json:"place_id"`
	UserID     string    `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.repo.Comments.ListByPlace(r.Context(), urlParam(r, "placeID"))
	if err != nil {
		s.respondRepoError(w, r, err, "list comments")
		return
	}
	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	content, ok := s.decodeComment(w, r)
	if !ok {
		return
	}
	comment, err := s.repo.Comments.Create(r.Context(), urlParam(r, "placeID"), currentUser(r), content)
	if err != nil {
		s.respondRepoError(w, r, err, "create comment")
		return
	}
	s.respondJSON(w, http.StatusCreated, toCommentResponse(comment))
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	content, ok := s.decodeComment(w, r)
	if !ok {
		return
	}
	comment, err := s.repo.Comments.Update(r.Context(), urlParam(r, "commentID"), currentUser(r), content)
	if err != nil {
		s.respondRepoError(w, r, err, "update comment")
		return
	}
	s.respondJSON(w, http.StatusOK, toCommentResponse(comment))
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Comments.Delete(r.Context(), urlParam(r, "commentID"), currentUser(r)); err != nil {
		s.respondRepoError(w, r, err, "delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeComment(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req commentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return "", false
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required")
		return "", false
	}
	return content, true
}

func toCommentResponse(c domain.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		PlaceID:    c.PlaceID,
		UserID:     c.UserID,
		AuthorName: c.AuthorName,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}
