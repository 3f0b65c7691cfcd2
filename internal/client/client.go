// Package client is a Go client for the tourist-hub API together with the
// optimistic rating state a frontend keeps per place.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/tourist-hub/internal/domain"
)

// APIError is a non-2xx response decoded from the API error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Rating is a rating as returned by the API.
type Rating struct {
	ID        string    `json:"id"`
	PlaceID   string    `json:"place_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingResult is the outcome of a rating submission.
type RatingResult struct {
	Rating    Rating                 `json:"rating"`
	Aggregate domain.RatingAggregate `json:"aggregate"`
	Created   bool                   `json:"-"`
}

// Place is a place as returned by the API.
type Place struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	ImageURL      *string   `json:"image_url"`
	Location      string    `json:"location"`
	Category      string    `json:"category"`
	AverageRating float64   `json:"average_rating"`
	TotalRatings  int64     `json:"total_ratings"`
	CreatedAt     time.Time `json:"created_at"`
}

// PlacePage is one page of the place listing.
type PlacePage struct {
	Items      []Place `json:"items"`
	NextCursor *string `json:"next_cursor"`
}

// ListPlacesParams narrows a place listing. Zero values are omitted.
type ListPlacesParams struct {
	Query     string
	Category  string
	MinRating float64
	Limit     int
	Cursor    string
}

// HTTPClient talks to the API over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPClient constructs a client for the API rooted at baseURL. token may be
// empty for anonymous access.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse api url: %q is not absolute", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		token:   token,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.With().Str("component", "api-client").Logger(),
	}, nil
}

// SubmitRating creates or replaces the caller's rating of a place.
func (c *HTTPClient) SubmitRating(ctx context.Context, placeID string, value int) (*RatingResult, error) {
	body := map[string]interface{}{"place_id": placeID, "rating": value}
	var result RatingResult
	status, err := c.do(ctx, http.MethodPost, "/ratings", nil, body, &result)
	if err != nil {
		return nil, err
	}
	result.Created = status == http.StatusCreated
	return &result, nil
}

// PlaceStats fetches the rating statistics of a place.
func (c *HTTPClient) PlaceStats(ctx context.Context, placeID string) (domain.RatingStatistics, error) {
	var payload struct {
		Stats domain.RatingStatistics `json:"stats"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/ratings/stats/place/"+url.PathEscape(placeID), nil, nil, &payload); err != nil {
		return domain.RatingStatistics{}, err
	}
	return payload.Stats, nil
}

// ListPlaces fetches one page of places.
func (c *HTTPClient) ListPlaces(ctx context.Context, params ListPlacesParams) (PlacePage, error) {
	q := url.Values{}
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if params.MinRating > 0 {
		q.Set("min_rating", strconv.FormatFloat(params.MinRating, 'f', -1, 64))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}

	var page PlacePage
	if _, err := c.do(ctx, http.MethodGet, "/places", q, nil, &page); err != nil {
		return PlacePage{}, err
	}
	return page, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, dst interface{}) (int, error) {
	rel := &url.URL{Path: c.baseURL.Path + path, RawQuery: query.Encode()}
	endpoint := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, c.decodeError(req, resp)
	}
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) decodeError(req *http.Request, resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Msg("api request failed")
	}
	return apiErr
}
