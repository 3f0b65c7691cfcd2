package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Clark-Hu/tourist-hub/internal/auth"
	"github.com/Clark-Hu/tourist-hub/internal/config"
	httpserver "github.com/Clark-Hu/tourist-hub/internal/http"
	"github.com/Clark-Hu/tourist-hub/internal/logging"
	"github.com/Clark-Hu/tourist-hub/internal/oauth"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
	"github.com/Clark-Hu/tourist-hub/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(cfg.Logging()).With().Str("service", "tourist-hub").Logger()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.DBAutoMigrate {
		if err := st.Migrate(dbCtx); err != nil {
			return err
		}
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)
	if err != nil {
		return err
	}

	deps := httpserver.Dependencies{
		Health: st,
		Repo:   repository.New(st),
		Tokens: tokens,
		Logger: logger,
	}

	if cfg.OAuthEnabled() {
		provider, err := oauth.NewHTTPClient(oauth.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			AuthURL:      cfg.OAuthAuthURL,
			TokenURL:     cfg.OAuthTokenURL,
			UserInfoURL:  cfg.OAuthUserInfoURL,
			Timeout:      time.Duration(cfg.OAuthTimeoutSecs) * time.Second,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		states, err := auth.NewStateStore(time.Duration(cfg.OAuthStateTTLSecs) * time.Second)
		if err != nil {
			return err
		}
		defer states.Close()
		deps.OAuth = provider
		deps.States = states
	} else {
		logger.Info().Msg("google sign-in disabled: GOOGLE_CLIENT_ID not set")
	}

	server := httpserver.New(cfg, deps)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErrCh:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return runErr
}
