package httpserver

import (
	"net/http"
	"time"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
)

type ratingSubmitRequest struct {
	PlaceID string `json:"place_id" validate:"required,uuid"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
}

type ratingUpdateRequest struct {
	Rating int `json:"rating" validate:"min=1,max=5"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	PlaceID   string    `json:"place_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ratingMutationResponse struct {
	Success   bool                   `json:"success"`
	Rating    ratingResponse         `json:"rating"`
	Aggregate domain.RatingAggregate `json:"aggregate"`
}

type ratingListResponse struct {
	Success bool             `json:"success"`
	Ratings []ratingResponse `json:"ratings"`
}

type ratingStatsResponse struct {
	Success bool                    `json:"success"`
	Stats   domain.RatingStatistics `json:"stats"`
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req ratingSubmitRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.repo.Ratings.Upsert(r.Context(), repository.RatingUpsertParams{
		PlaceID: req.PlaceID,
		UserID:  currentUser(r),
		Value:   req.Rating,
	})
	if err != nil {
		s.respondRepoError(w, r, err, "submit rating")
		return
	}

	status := http.StatusOK
	if result.Inserted {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, toRatingMutationResponse(result))
}

func (s *Server) handleUpdateRating(w http.ResponseWriter, r *http.Request) {
	var req ratingUpdateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.repo.Ratings.Update(r.Context(), urlParam(r, "ratingID"), currentUser(r), req.Rating)
	if err != nil {
		s.respondRepoError(w, r, err, "update rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingMutationResponse(result))
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	result, err := s.repo.Ratings.Delete(r.Context(), urlParam(r, "ratingID"), currentUser(r))
	if err != nil {
		s.respondRepoError(w, r, err, "delete rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingMutationResponse(result))
}

func (s *Server) handleRetractRating(w http.ResponseWriter, r *http.Request) {
	result, err := s.repo.Ratings.DeleteForPlace(r.Context(), urlParam(r, "placeID"), currentUser(r))
	if err != nil {
		s.respondRepoError(w, r, err, "delete rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRatingMutationResponse(result))
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	placeID := urlParam(r, "placeID")
	if _, err := s.repo.Places.GetByID(r.Context(), placeID); err != nil {
		s.respondRepoError(w, r, err, "list ratings")
		return
	}
	ratings, err := s.repo.Ratings.ListByPlace(r.Context(), placeID)
	if err != nil {
		s.respondRepoError(w, r, err, "list ratings")
		return
	}
	resp := ratingListResponse{Success: true, Ratings: make([]ratingResponse, 0, len(ratings))}
	for _, rating := range ratings {
		resp.Ratings = append(resp.Ratings, toRatingResponse(rating))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMyRating(w http.ResponseWriter, r *http.Request) {
	rating, err := s.repo.Ratings.GetForUser(r.Context(), urlParam(r, "placeID"), currentUser(r))
	if err != nil {
		s.respondRepoError(w, r, err, "fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"rating":  toRatingResponse(rating),
	})
}

func (s *Server) handleRatingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.Ratings.Statistics(r.Context(), urlParam(r, "placeID"))
	if err != nil {
		s.respondRepoError(w, r, err, "fetch rating statistics")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingStatsResponse{Success: true, Stats: stats})
}

func toRatingResponse(rating domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        rating.ID,
		PlaceID:   rating.PlaceID,
		UserID:    rating.UserID,
		Rating:    rating.Value,
		CreatedAt: rating.CreatedAt,
		UpdatedAt: rating.UpdatedAt,
	}
}

func toRatingMutationResponse(result repository.RatingResult) ratingMutationResponse {
	return ratingMutationResponse{
		Success:   true,
		Rating:    toRatingResponse(result.Rating),
		Aggregate: result.Aggregate,
	}
}
