// Command oauth-mock is a local stand-in for the Google OAuth endpoints. Point
// OAUTH_AUTH_URL, OAUTH_TOKEN_URL and OAUTH_USERINFO_URL at it during
// development.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type mockUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty"`
	VerifiedEmail bool   `json:"verified_email"`
}

type provider struct {
	mu     sync.Mutex
	users  map[string]mockUser
	codes  map[string]string // code -> login hint
	tokens map[string]string // access token -> login hint
	logger zerolog.Logger
}

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "", "optional JSON file mapping login hints to users")
		verbose = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	users := map[string]mockUser{
		"default": {ID: "mock-1", Email: "traveller@example.com", Name: "Mock Traveller", VerifiedEmail: true},
	}
	if *data != "" {
		payload, err := os.ReadFile(*data)
		if err != nil {
			logger.Fatal().Err(err).Msg("read mock data")
		}
		if err := json.Unmarshal(payload, &users); err != nil {
			logger.Fatal().Err(err).Msg("parse mock data")
		}
	}

	p := &provider{
		users:  users,
		codes:  make(map[string]string),
		tokens: make(map[string]string),
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if *verbose {
		r.Use(hlog.NewHandler(logger), hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", duration).
				Msg("request")
		}))
	}
	r.Get("/authorize", p.authorize)
	r.Post("/token", p.token)
	r.Get("/userinfo", p.userinfo)

	addr := ":" + *port
	logger.Info().Str("addr", addr).Int("users", len(users)).Msg("mock oauth provider listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// authorize skips the consent screen and redirects straight back with a code.
// The login_hint parameter selects the user; it defaults to "default".
func (p *provider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirect.Scheme == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	hint := q.Get("login_hint")
	if hint == "" {
		hint = "default"
	}

	params := redirect.Query()
	params.Set("state", q.Get("state"))
	p.mu.Lock()
	_, known := p.users[hint]
	if known {
		code := randomToken()
		p.codes[code] = hint
		params.Set("code", code)
	} else {
		params.Set("error", "access_denied")
	}
	p.mu.Unlock()

	redirect.RawQuery = params.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	code := r.PostForm.Get("code")

	p.mu.Lock()
	hint, ok := p.codes[code]
	delete(p.codes, code)
	var access string
	if ok {
		access = randomToken()
		p.tokens[access] = hint
	}
	p.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (p *provider) userinfo(w http.ResponseWriter, r *http.Request) {
	access := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	p.mu.Lock()
	hint, ok := p.tokens[access]
	user := p.users[hint]
	p.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func randomToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
