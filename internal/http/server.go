package httpserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/tourist-hub/internal/auth"
	"github.com/Clark-Hu/tourist-hub/internal/config"
	"github.com/Clark-Hu/tourist-hub/internal/oauth"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies bundles the collaborators of the HTTP layer. OAuth and States
// may be nil when Google sign-in is not configured.
type Dependencies struct {
	Health HealthChecker
	Repo   *repository.Repository
	Tokens *auth.TokenManager
	OAuth  oauth.Provider
	States *auth.StateStore
	Logger zerolog.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	health  HealthChecker
	repo    *repository.Repository
	tokens  *auth.TokenManager
	oauth   oauth.Provider
	states  *auth.StateStore
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Dependencies) *Server {
	s := &Server{
		cfg:    cfg,
		health: deps.Health,
		repo:   deps.Repo,
		tokens: deps.Tokens,
		oauth:  deps.OAuth,
		states: deps.States,
		logger: deps.Logger.With().Str("component", "http").Logger(),
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger)...)
	s.router.Use(middleware.Recoverer)
	s.router.Use(instrument)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimit > 0 {
		s.router.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	s.registerRoutes()
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.UploadDir))))

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.With(s.requireAuth).Get("/me", s.handleMe)
		r.Get("/google", s.handleGoogleLogin)
		r.Get("/google/callback", s.handleGoogleCallback)
	})

	s.router.Route("/users", func(r chi.Router) {
		r.With(s.requireAuth).Get("/me", s.handleMe)
		r.With(s.requireAuth).Put("/me/profile", s.handleUpdateProfile)
		r.Get("/{userID}", s.handleGetUser)
	})

	s.router.Route("/places", func(r chi.Router) {
		r.Get("/", s.handleListPlaces)
		r.With(s.requireAuth).Post("/", s.handleCreatePlace)
		r.Route("/{placeID}", func(r chi.Router) {
			r.Get("/", s.handleGetPlace)
			r.With(s.requireAuth).Put("/", s.handleUpdatePlace)
			r.With(s.requireAuth).Delete("/", s.handleDeletePlace)
			r.Get("/comments", s.handleListComments)
			r.With(s.requireAuth).Post("/comments", s.handleCreateComment)
		})
	})

	s.router.Route("/ratings", func(r chi.Router) {
		r.With(s.requireAuth).Post("/", s.handleSubmitRating)
		r.With(s.requireAuth).Put("/{ratingID}", s.handleUpdateRating)
		r.With(s.requireAuth).Delete("/{ratingID}", s.handleDeleteRating)
		r.Get("/place/{placeID}", s.handleListRatings)
		r.With(s.requireAuth).Get("/place/{placeID}/me", s.handleGetMyRating)
		r.With(s.requireAuth).Delete("/place/{placeID}", s.handleRetractRating)
		r.Get("/stats/place/{placeID}", s.handleRatingStats)
	})

	s.router.Route("/comments/{commentID}", func(r chi.Router) {
		r.With(s.requireAuth).Put("/", s.handleUpdateComment)
		r.With(s.requireAuth).Delete("/", s.handleDeleteComment)
		s.reactionRoutes(r, "commentID", s.repo.CommentReactions)
	})

	s.router.Route("/photos", func(r chi.Router) {
		r.Get("/", s.handleListPhotos)
		r.With(s.requireAuth).Post("/", s.handleUploadPhoto)
		r.Route("/{photoID}", func(r chi.Router) {
			r.Get("/", s.handleGetPhoto)
			r.With(s.requireAuth).Delete("/", s.handleDeletePhoto)
			s.reactionRoutes(r, "photoID", s.repo.PhotoReactions)
		})
	})
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return err
	}
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database not configured")
		return
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
