package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
)

type placeCreateRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
	Location    string  `json:"location" validate:"max=300"`
	Category    string  `json:"category" validate:"max=100"`
}

// placeUpdateRequest lists the editable fields. Unknown fields such as
// average_rating are rejected by the decoder.
type placeUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
	Location    *string `json:"location" validate:"omitempty,max=300"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
}

type placeResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ImageURL      *string   `json:"image_url"`
	Location      string    `json:"location"`
	Category      string    `json:"category"`
	AverageRating float64   `json:"average_rating"`
	TotalRatings  int64     `json:"total_ratings"`
	CreatedBy     *string   `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type placeListResponse struct {
	Items      []placeResponse `json:"items"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}

func (s *Server) handleListPlaces(w http.ResponseWriter, r *http.Request) {
	filters, err := buildPlaceFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.repo.Places.List(r.Context(), filters)
	if err != nil {
		s.respondRepoError(w, r, err, "list places")
		return
	}

	resp := placeListResponse{
		Items:      make([]placeResponse, 0, len(result.Items)),
		NextCursor: result.NextCursor,
	}
	for _, place := range result.Items {
		resp.Items = append(resp.Items, toPlaceResponse(place))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func buildPlaceFilters(query url.Values) (repository.PlaceListFilters, error) {
	var filters repository.PlaceListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("category")); val != "" {
		filters.Category = &val
	}
	if val := strings.TrimSpace(query.Get("min_rating")); val != "" {
		minRating, err := strconv.ParseFloat(val, 64)
		if err != nil || minRating < 0 || minRating > domain.MaxRating {
			return filters, fmt.Errorf("invalid min_rating value")
		}
		filters.MinRating = &minRating
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleGetPlace(w http.ResponseWriter, r *http.Request) {
	place, err := s.repo.Places.GetByID(r.Context(), urlParam(r, "placeID"))
	if err != nil {
		s.respondRepoError(w, r, err, "fetch place")
		return
	}
	s.respondJSON(w, http.StatusOK, toPlaceResponse(place))
}

func (s *Server) handleCreatePlace(w http.ResponseWriter, r *http.Request) {
	var req placeCreateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
		return
	}

	place, err := s.repo.Places.Create(r.Context(), repository.PlaceCreateParams{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		ImageURL:    normalizeStringPtr(req.ImageURL),
		Location:    strings.TrimSpace(req.Location),
		Category:    strings.TrimSpace(req.Category),
		CreatedBy:   currentUser(r),
	})
	if err != nil {
		s.respondRepoError(w, r, err, "create place")
		return
	}

	w.Header().Set("Location", "/places/"+place.ID)
	s.respondJSON(w, http.StatusCreated, toPlaceResponse(place))
}

func (s *Server) handleUpdatePlace(w http.ResponseWriter, r *http.Request) {
	var req placeUpdateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	place, err := s.repo.Places.Update(r.Context(), urlParam(r, "placeID"), currentUser(r), repository.PlaceUpdateParams{
		Name:        normalizeStringPtr(req.Name),
		Description: req.Description,
		ImageURL:    normalizeStringPtr(req.ImageURL),
		Location:    req.Location,
		Category:    req.Category,
	})
	if err != nil {
		s.respondRepoError(w, r, err, "update place")
		return
	}
	s.respondJSON(w, http.StatusOK, toPlaceResponse(place))
}

func (s *Server) handleDeletePlace(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Places.Delete(r.Context(), urlParam(r, "placeID"), currentUser(r)); err != nil {
		s.respondRepoError(w, r, err, "delete place")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toPlaceResponse(place domain.Place) placeResponse {
	return placeResponse{
		ID:            place.ID,
		Name:          place.Name,
		Description:   place.Description,
		ImageURL:      place.ImageURL,
		Location:      place.Location,
		Category:      place.Category,
		AverageRating: place.AverageRating,
		TotalRatings:  place.TotalRatings,
		CreatedBy:     place.CreatedBy,
		CreatedAt:     place.CreatedAt,
		UpdatedAt:     place.UpdatedAt,
	}
}
