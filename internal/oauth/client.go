// Package oauth signs users in with an external OAuth2 provider.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/Clark-Hu/tourist-hub/internal/metrics"
)

var (
	// ErrInvalidGrant is returned when the provider rejects the code or token.
	ErrInvalidGrant = errors.New("oauth: invalid grant")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("oauth: provider unavailable")
)

// Profile is the identity returned by the provider.
type Profile struct {
	ID            string
	Email         string
	Name          string
	Picture       *string
	VerifiedEmail bool
}

// Provider defines the contract for the sign-in flow.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// Config holds the provider settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Timeout      time.Duration
	Logger       zerolog.Logger
}

// HTTPClient implements Provider over HTTP.
type HTTPClient struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*Profile]
	logger      zerolog.Logger
}

const breakerName = "oauth-provider"

// NewHTTPClient constructs a provider client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oauth client id is required")
	}
	if cfg.TokenURL == "" || cfg.UserInfoURL == "" || cfg.AuthURL == "" {
		return nil, fmt.Errorf("oauth endpoints are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	logger := cfg.Logger.With().Str("component", "oauth").Logger()

	c := &HTTPClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: strings.TrimRight(cfg.UserInfoURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   cfg.Timeout,
				ResponseHeaderTimeout: cfg.Timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	c.breaker = gobreaker.NewCircuitBreaker[*Profile](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidGrant) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return c, nil
}

// AuthCodeURL returns the provider consent URL carrying state.
func (c *HTTPClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's profile.
func (c *HTTPClient) Exchange(ctx context.Context, code string) (*Profile, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidGrant)
	}
	profile, err := c.breaker.Execute(func() (*Profile, error) {
		return c.exchange(ctx, code)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return profile, err
}

func (c *HTTPClient) exchange(ctx context.Context, code string) (*Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
		}
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return c.FetchProfile(ctx, token.AccessToken)
}

// FetchProfile retrieves the user profile for an access token.
func (c *HTTPClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload userInfoResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode userinfo response: %w", err)
		}
		profile, err := convertToProfile(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
		}
		return profile, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidGrant
	default:
		c.logger.Warn().Int("status", resp.StatusCode).Msg("unexpected userinfo status")
		return nil, fmt.Errorf("oauth: userinfo returned %d", resp.StatusCode)
	}
}

type userInfoResponse struct {
	ID            string  `json:"id"`
	Sub           string  `json:"sub"`
	Email         string  `json:"email"`
	VerifiedEmail *bool   `json:"verified_email"`
	EmailVerified *bool   `json:"email_verified"`
	Name          string  `json:"name"`
	GivenName     string  `json:"given_name"`
	Picture       *string `json:"picture"`
}

func convertToProfile(payload userInfoResponse) (*Profile, error) {
	id := payload.ID
	if id == "" {
		id = payload.Sub
	}
	if id == "" {
		return nil, errors.New("userinfo without subject")
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return nil, errors.New("userinfo without email")
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		name = strings.TrimSpace(payload.GivenName)
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	verified := false
	switch {
	case payload.VerifiedEmail != nil:
		verified = *payload.VerifiedEmail
	case payload.EmailVerified != nil:
		verified = *payload.EmailVerified
	}

	picture := payload.Picture
	if picture != nil && *picture == "" {
		picture = nil
	}

	return &Profile{
		ID:            id,
		Email:         email,
		Name:          name,
		Picture:       picture,
		VerifiedEmail: verified,
	}, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
