package httpserver

import (
	"net/http"
	"time"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
)

type profileUpdateRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=100"`
	Bio         *string `json:"bio" validate:"omitempty,max=2000"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url"`
	HomeTown    *string `json:"home_town" validate:"omitempty,max=200"`
}

type profileResponse struct {
	userResponse
	Bio       string    `json:"bio"`
	AvatarURL *string   `json:"avatar_url"`
	HomeTown  *string   `json:"home_town"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, profile, err := s.repo.Users.GetProfile(r.Context(), urlParam(r, "userID"))
	if err != nil {
		s.respondRepoError(w, r, err, "fetch user")
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(user, profile, false))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, profile, err := s.repo.Users.UpdateProfile(r.Context(), currentUser(r), repository.ProfileUpdateParams{
		DisplayName: normalizeStringPtr(req.DisplayName),
		Bio:         req.Bio,
		AvatarURL:   normalizeStringPtr(req.AvatarURL),
		HomeTown:    req.HomeTown,
	})
	if err != nil {
		s.respondRepoError(w, r, err, "update profile")
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(user, profile, true))
}

func toProfileResponse(user domain.User, profile domain.Profile, withEmail bool) profileResponse {
	return profileResponse{
		userResponse: toUserResponse(user, withEmail),
		Bio:          profile.Bio,
		AvatarURL:    profile.AvatarURL,
		HomeTown:     profile.HomeTown,
		UpdatedAt:    profile.UpdatedAt,
	}
}
