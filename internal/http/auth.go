package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Clark-Hu/tourist-hub/internal/auth"
	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/oauth"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}
	user, err := s.repo.Users.Create(r.Context(), repository.UserCreateParams{
		Email:        req.Email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: &hash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.respondError(w, http.StatusConflict, "CONFLICT", "Email is already registered")
			return
		}
		s.respondRepoError(w, r, err, "register")
		return
	}
	s.respondWithSession(w, r, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.repo.Users.GetByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.respondRepoError(w, r, err, "login")
		return
	}
	if err != nil || user.PasswordHash == nil || auth.CheckPassword(*user.PasswordHash, req.Password) != nil {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password")
		return
	}
	s.respondWithSession(w, r, http.StatusOK, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, profile, err := s.repo.Users.GetProfile(r.Context(), currentUser(r))
	if err != nil {
		s.respondRepoError(w, r, err, "fetch user")
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(user, profile, true))
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil || s.states == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Google sign-in is not configured")
		return
	}
	state, err := s.states.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("create oauth state failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start sign-in")
		return
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil || s.states == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Google sign-in is not configured")
		return
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		s.redirectToFrontend(w, r, url.Values{"error": {providerErr}})
		return
	}
	if err := s.states.Consume(query.Get("state")); err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid or expired sign-in state")
		return
	}

	profile, err := s.oauth.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrInvalidGrant):
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign-in was rejected by the provider")
		case errors.Is(err, oauth.ErrUnavailable):
			s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Sign-in provider is unavailable")
		default:
			s.logger.Error().Err(err).Msg("oauth exchange failed")
			s.respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Sign-in provider failed")
		}
		return
	}

	user, err := s.repo.Users.FindOrCreateGoogleUser(r.Context(), profile.ID, profile.Email, profile.Name)
	if err != nil {
		s.respondRepoError(w, r, err, "sign in")
		return
	}
	if profile.Picture != nil {
		_, _, err := s.repo.Users.UpdateProfile(r.Context(), user.ID, repository.ProfileUpdateParams{AvatarURL: profile.Picture})
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("store avatar failed")
		}
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("issue token failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in")
		return
	}
	s.redirectToFrontend(w, r, url.Values{"token": {token}})
}

func (s *Server) redirectToFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	target := strings.TrimRight(s.cfg.FrontendURL, "/") + "/auth/callback?" + params.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) respondWithSession(w http.ResponseWriter, r *http.Request, status int, user domain.User) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("issue token failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue session")
		return
	}
	s.respondJSON(w, status, authResponse{Token: token, User: toUserResponse(user, true)})
}

func toUserResponse(user domain.User, withEmail bool) userResponse {
	resp := userResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
	}
	if withEmail {
		resp.Email = user.Email
	}
	return resp
}
