package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/tourist-hub/internal/auth"
	"github.com/Clark-Hu/tourist-hub/internal/config"
	"github.com/Clark-Hu/tourist-hub/internal/domain"
	"github.com/Clark-Hu/tourist-hub/internal/oauth"
	"github.com/Clark-Hu/tourist-hub/internal/repository"
	"github.com/Clark-Hu/tourist-hub/internal/store/storetest"
)

var userSeq atomic.Int64

// fakeProvider is an in-process oauth.Provider.
type fakeProvider struct {
	profile *oauth.Profile
	err     error
}

func (f fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.test/authorize?state=" + url.QueryEscape(state)
}

func (f fakeProvider) Exchange(ctx context.Context, code string) (*oauth.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func buildTestServer(tb testing.TB, configure ...func(*Dependencies)) *Server {
	tb.Helper()
	cfg := config.Config{
		Port:             "0",
		FrontendURL:      "http://localhost:5173",
		CORSOrigins:      "http://localhost:5173",
		UploadDir:        tb.TempDir(),
		UploadMaxBytes:   1 << 20,
		ReadTimeoutSecs:  15,
		WriteTimeoutSecs: 15,
		IdleTimeoutSecs:  60,
	}

	tokens, err := auth.NewTokenManager("handler-test-secret-key", time.Hour)
	if err != nil {
		tb.Fatalf("token manager: %v", err)
	}
	deps := Dependencies{
		Repo:   repository.NewWithPool(storetest.NewPool(tb)),
		Tokens: tokens,
		Logger: zerolog.Nop(),
	}
	for _, fn := range configure {
		fn(&deps)
	}
	srv := New(cfg, deps)
	// Replace chi router to avoid default middleware noise.
	srv.router = chi.NewRouter()
	srv.registerRoutes()
	return srv
}

func withOAuth(tb testing.TB, provider oauth.Provider) func(*Dependencies) {
	return func(deps *Dependencies) {
		states, err := auth.NewStateStore(time.Minute)
		if err != nil {
			tb.Fatalf("state store: %v", err)
		}
		tb.Cleanup(func() { _ = states.Close() })
		deps.OAuth = provider
		deps.States = states
	}
}

// mustSession creates a user and returns its id and a bearer token.
func mustSession(tb testing.TB, srv *Server) (string, string) {
	tb.Helper()
	email := fmt.Sprintf("user%d@example.com", userSeq.Add(1))
	user, err := srv.repo.Users.Create(context.Background(), repository.UserCreateParams{
		Email:       email,
		DisplayName: "Tester",
	})
	if err != nil {
		tb.Fatalf("create user: %v", err)
	}
	token, err := srv.tokens.Issue(user.ID, user.Email)
	if err != nil {
		tb.Fatalf("issue token: %v", err)
	}
	return user.ID, token
}

func mustPlace(tb testing.TB, srv *Server, ownerID string) domain.Place {
	tb.Helper()
	place, err := srv.repo.Places.Create(context.Background(), repository.PlaceCreateParams{
		Name:      "Old Harbour",
		Location:  "Waterfront",
		Category:  "landmark",
		CreatedBy: ownerID,
	})
	if err != nil {
		tb.Fatalf("create place: %v", err)
	}
	return place
}

func doRequest(srv *Server, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHandleRatingStats(t *testing.T) {
	srv := buildTestServer(t)
	ownerID, token := mustSession(t, srv)
	place := mustPlace(t, srv, ownerID)

	rec := doRequest(srv, http.MethodGet, "/ratings/stats/place/"+place.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var empty ratingStatsResponse
	decodeBody(t, rec, &empty)
	if !empty.Success || empty.Stats.TotalRatings != 0 || empty.Stats.AverageRating != 0 {
		t.Fatalf("unexpected empty stats: %+v", empty)
	}
	if len(empty.Stats.RatingDistribution) != 5 || empty.Stats.RatingDistribution[0].Rating != 5 {
		t.Fatalf("distribution = %+v, want 5..1", empty.Stats.RatingDistribution)
	}

	body := fmt.Sprintf(`{"place_id":%q,"rating":4}`, place.ID)
	if rec := doRequest(srv, http.MethodPost, "/ratings", token, strings.NewReader(body)); rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, http.MethodGet, "/ratings/stats/place/"+place.ID, "", nil)
	var stats ratingStatsResponse
	decodeBody(t, rec, &stats)
	if stats.Stats.TotalRatings != 1 || stats.Stats.AverageRating != 4 {
		t.Fatalf("stats = %+v, want 4.0/1", stats.Stats)
	}
	if stats.Stats.RatingDistribution[1].Count != 1 {
		t.Fatalf("bucket 4 = %+v, want count 1", stats.Stats.RatingDistribution[1])
	}
}

func TestHandleRatingStats_Errors(t *testing.T) {
	srv := buildTestServer(t)

	cases := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"malformed id", "/ratings/stats/place/not-a-uuid", http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown place", "/ratings/stats/place/7d3f8a3e-57c2-4c39-9a63-1c3a6b1f1a11", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, tc.path, "", nil)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var resp errorResponse
			decodeBody(t, rec, &resp)
			if resp.Success || resp.Code != tc.code || resp.Message == "" {
				t.Fatalf("unexpected envelope: %+v", resp)
			}
		})
	}
}

func TestHandleSubmitRating(t *testing.T) {
	srv := buildTestServer(t)
	ownerID, token := mustSession(t, srv)
	place := mustPlace(t, srv, ownerID)
	submit := func(token, body string) *httptest.ResponseRecorder {
		return doRequest(srv, http.MethodPost, "/ratings", token, strings.NewReader(body))
	}

	if rec := submit("", fmt.Sprintf(`{"place_id":%q,"rating":4}`, place.ID)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}

	rec := submit(token, fmt.Sprintf(`{"place_id":%q,"rating":4}`, place.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first submit status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	var created ratingMutationResponse
	decodeBody(t, rec, &created)
	if !created.Success || created.Rating.Rating != 4 || created.Aggregate.Average != 4 || created.Aggregate.Count != 1 {
		t.Fatalf("unexpected response: %+v", created)
	}

	rec = submit(token, fmt.Sprintf(`{"place_id":%q,"rating":2}`, place.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("resubmit status = %d, want 200", rec.Code)
	}
	var updated ratingMutationResponse
	decodeBody(t, rec, &updated)
	if updated.Rating.ID != created.Rating.ID || updated.Aggregate.Average != 2 || updated.Aggregate.Count != 1 {
		t.Fatalf("resubmit should replace the rating: %+v", updated)
	}

	invalid := []struct {
		name   string
		body   string
		status int
	}{
		{"too high", fmt.Sprintf(`{"place_id":%q,"rating":6}`, place.ID), http.StatusUnprocessableEntity},
		{"zero", fmt.Sprintf(`{"place_id":%q,"rating":0}`, place.ID), http.StatusUnprocessableEntity},
		{"fractional", fmt.Sprintf(`{"place_id":%q,"rating":3.5}`, place.ID), http.StatusUnprocessableEntity},
		{"bad place id", `{"place_id":"abc","rating":3}`, http.StatusUnprocessableEntity},
		{"unknown place", `{"place_id":"7d3f8a3e-57c2-4c39-9a63-1c3a6b1f1a11","rating":3}`, http.StatusNotFound},
		{"malformed json", `{"place_id":`, http.StatusUnprocessableEntity},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			if rec := submit(token, tc.body); rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
		})
	}

	stats, err := srv.repo.Ratings.Statistics(context.Background(), place.ID)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalRatings != 1 || stats.AverageRating != 2 {
		t.Fatalf("rejected submissions changed stats: %+v", stats)
	}
}

func TestHandleRatingLifecycle(t *testing.T) {
	srv := buildTestServer(t)
	ownerID, ownerToken := mustSession(t, srv)
	_, otherToken := mustSession(t, srv)
	place := mustPlace(t, srv, ownerID)

	rec := doRequest(srv, http.MethodPost, "/ratings", ownerToken, strings.NewReader(fmt.Sprintf(`{"place_id":%q,"rating":5}`, place.ID)))
	var created ratingMutationResponse
	decodeBody(t, rec, &created)

	if rec := doRequest(srv, http.MethodPut, "/ratings/"+created.Rating.ID, otherToken, strings.NewReader(`{"rating":1}`)); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign update status = %d, want 403", rec.Code)
	}

	rec = doRequest(srv, http.MethodPut, "/ratings/"+created.Rating.ID, ownerToken, strings.NewReader(`{"rating":3}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/ratings/place/"+place.ID+"/me", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("my rating status = %d, want 200", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/ratings/place/"+place.ID, "", nil)
	var list ratingListResponse
	decodeBody(t, rec, &list)
	if len(list.Ratings) != 1 || list.Ratings[0].Rating != 3 {
		t.Fatalf("list = %+v, want one rating of 3", list.Ratings)
	}

	rec = doRequest(srv, http.MethodDelete, "/ratings/place/"+place.ID, ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("retract status = %d, want 200", rec.Code)
	}
	var retracted ratingMutationResponse
	decodeBody(t, rec, &retracted)
	if retracted.Aggregate.Count != 0 || retracted.Aggregate.Average != 0 {
		t.Fatalf("aggregate after retract = %+v, want zero", retracted.Aggregate)
	}

	if rec := doRequest(srv, http.MethodGet, "/ratings/place/"+place.ID+"/me", ownerToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("my rating after retract = %d, want 404", rec.Code)
	}
	if rec := doRequest(srv, http.MethodGet, "/ratings/place/7d3f8a3e-57c2-4c39-9a63-1c3a6b1f1a11", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("list of unknown place = %d, want 404", rec.Code)
	}
}

func TestHandleUpdatePlace_KeepsAggregate(t *testing.T) {
	srv := buildTestServer(t)
	ownerID, token := mustSession(t, srv)
	_, otherToken := mustSession(t, srv)
	place := mustPlace(t, srv, ownerID)

	doRequest(srv, http.MethodPost, "/ratings", token, strings.NewReader(fmt.Sprintf(`{"place_id":%q,"rating":5}`, place.ID)))

	rec := doRequest(srv, http.MethodPut, "/places/"+place.ID, token, strings.NewReader(`{"name":"Hacked","average_rating":1,"total_ratings":99}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	if rec := doRequest(srv, http.MethodPut, "/places/"+place.ID, otherToken, strings.NewReader(`{"name":"Mine now"}`)); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign update status = %d, want 403", rec.Code)
	}

	rec = doRequest(srv, http.MethodPut, "/places/"+place.ID, token, strings.NewReader(`{"name":"New Harbour"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	var resp placeResponse
	decodeBody(t, rec, &resp)
	if resp.Name != "New Harbour" || resp.AverageRating != 5 || resp.TotalRatings != 1 {
		t.Fatalf("unexpected place: %+v", resp)
	}
}

func TestHandlePlacesCRUD(t *testing.T) {
	srv := buildTestServer(t)
	_, token := mustSession(t, srv)

	if rec := doRequest(srv, http.MethodPost, "/places", "", strings.NewReader(`{"name":"x"}`)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d, want 401", rec.Code)
	}
	if rec := doRequest(srv, http.MethodPost, "/places", token, strings.NewReader(`{"name":"  "}`)); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name = %d, want 422", rec.Code)
	}

	rec := doRequest(srv, http.MethodPost, "/places", token, strings.NewReader(`{"name":"Lighthouse","category":"landmark","image_url":"https://img.example.com/l.jpg"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	var created placeResponse
	decodeBody(t, rec, &created)
	if rec.Header().Get("Location") != "/places/"+created.ID || created.TotalRatings != 0 {
		t.Fatalf("unexpected create response: %+v", created)
	}

	rec = doRequest(srv, http.MethodGet, "/places?category=landmark&limit=10", "", nil)
	var list placeListResponse
	decodeBody(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("list = %+v", list.Items)
	}

	if rec := doRequest(srv, http.MethodGet, "/places?min_rating=9", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad min_rating = %d, want 400", rec.Code)
	}

	if rec := doRequest(srv, http.MethodDelete, "/places/"+created.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", rec.Code)
	}
	if rec := doRequest(srv, http.MethodGet, "/places/"+created.ID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestHandleRegisterAndLogin(t *testing.T) {
	srv := buildTestServer(t)

	body := `{"email":"Ana@Example.com","password":"correct horse","display_name":"Ana"}`
	rec := doRequest(srv, http.MethodPost, "/auth/register", "", strings.NewReader(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	var registered authResponse
	decodeBody(t, rec, &registered)
	if registered.Token == "" || registered.User.Email != "ana@example.com" {
		t.Fatalf("unexpected register response: %+v", registered)
	}

	if rec := doRequest(srv, http.MethodPost, "/auth/register", "", strings.NewReader(body)); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", rec.Code)
	}
	if rec := doRequest(srv, http.MethodPost, "/auth/register", "", strings.NewReader(`{"email":"b@example.com","password":"short","display_name":"B"}`)); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short password = %d, want 422", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/auth/login", "", strings.NewReader(`{"email":"ana@example.com","password":"correct horse"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, want 200", rec.Code)
	}
	var session authResponse
	decodeBody(t, rec, &session)

	for _, bad := range []string{
		`{"email":"ana@example.com","password":"wrong password"}`,
		`{"email":"nobody@example.com","password":"correct horse"}`,
	} {
		if rec := doRequest(srv, http.MethodPost, "/auth/login", "", strings.NewReader(bad)); rec.Code != http.StatusUnauthorized {
			t.Fatalf("login %s = %d, want 401", bad, rec.Code)
		}
	}

	rec = doRequest(srv, http.MethodGet, "/auth/me", session.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me = %d, want 200", rec.Code)
	}
	if rec := doRequest(srv, http.MethodGet, "/auth/me", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me with bad token = %d, want 401", rec.Code)
	}
}

func TestHandleProfile(t *testing.T) {
	srv := buildTestServer(t)
	userID, token := mustSession(t, srv)

	rec := doRequest(srv, http.MethodPut, "/users/me/profile", token, strings.NewReader(`{"bio":"Walker","home_town":"Porto","avatar_url":"not a url"}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad avatar = %d, want 422", rec.Code)
	}

	rec = doRequest(srv, http.MethodPut, "/users/me/profile", token, strings.NewReader(`{"bio":"Walker","home_town":"Porto"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, http.MethodGet, "/users/"+userID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public profile = %d, want 200", rec.Code)
	}
	var public profileResponse
	decodeBody(t, rec, &public)
	if public.Email != "" {
		t.Fatalf("public profile leaks email %q", public.Email)
	}
	if public.Bio != "Walker" || public.HomeTown == nil || *public.HomeTown != "Porto" {
		t.Fatalf("unexpected profile: %+v", public)
	}
}

func TestHandleCommentsAndReactions(t *testing.T) {
	srv := buildTestServer(t)
	ownerID, token := mustSession(t, srv)
	_, otherToken := mustSession(t, srv)
	place := mustPlace(t, srv, ownerID)

	rec := doRequest(srv, http.MethodPost, "/places/"+place.ID+"/comments", token, strings.NewReader(`{"content":"Great view"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create comment = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	var comment commentResponse
	decodeBody(t, rec, &comment)

	if rec := doRequest(srv, http.MethodPut, "/comments/"+comment.ID, otherToken, strings.NewReader(`{"content":"edit"}`)); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign edit = %d, want 403", rec.Code)
	}

	reactionsPath := "/comments/" + comment.ID + "/reactions"
	if rec := doRequest(srv, http.MethodPut, reactionsPath, otherToken, strings.NewReader(`{"reaction_type":"angry"}`)); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid reaction = %d, want 422", rec.Code)
	}
	doRequest(srv, http.MethodPut, reactionsPath, otherToken, strings.NewReader(`{"reaction_type":"like"}`))
	rec = doRequest(srv, http.MethodPut, reactionsPath, otherToken, strings.NewReader(`{"reaction_type":"love"}`))
	var summary reactionSummaryResponse
	decodeBody(t, rec, &summary)
	if summary.Total != 1 || summary.Counts["love"] != 1 || summary.Counts["like"] != 0 {
		t.Fatalf("reaction should be replaced: %+v", summary)
	}
	if summary.Mine == nil || *summary.Mine != "love" {
		t.Fatalf("mine = %v, want love", summary.Mine)
	}

	rec = doRequest(srv, http.MethodGet, reactionsPath, "", nil)
	var anonymous reactionSummaryResponse
	decodeBody(t, rec, &anonymous)
	if anonymous.Mine != nil || anonymous.Total != 1 {
		t.Fatalf("anonymous summary = %+v", anonymous)
	}

	if rec := doRequest(srv, http.MethodDelete, reactionsPath, otherToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("remove reaction = %d, want 200", rec.Code)
	}
	if rec := doRequest(srv, http.MethodDelete, reactionsPath, otherToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("remove missing reaction = %d, want 404", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/places/"+place.ID+"/comments", "", nil)
	var comments []commentResponse
	decodeBody(t, rec, &comments)
	if len(comments) != 1 || comments[0].AuthorName != "Tester" {
		t.Fatalf("comments = %+v", comments)
	}

	if rec := doRequest(srv, http.MethodDelete, "/comments/"+comment.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete comment = %d, want 204", rec.Code)
	}
}

// pngHeader is the signature and IHDR chunk of a 1x1 PNG.
var pngHeader = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

func uploadRequest(t *testing.T, token string, fields map[string]string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if content != nil {
		part, err := mw.CreateFormFile("photo", "upload.bin")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/photos", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleUploadPhoto(t *testing.T) {
	srv := buildTestServer(t)
	ownerID, token := mustSession(t, srv)
	_, otherToken := mustSession(t, srv)
	place := mustPlace(t, srv, ownerID)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, token, nil, []byte("plain text is not an image")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("text upload = %d, want 415", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, token, map[string]string{"caption": "sunset"}, nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing file = %d, want 422", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, token, map[string]string{"caption": "sunset", "place_id": place.ID}, pngHeader))
	if rec.Code != http.StatusCreated {
		t.Fatalf("png upload = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	var photo photoResponse
	decodeBody(t, rec, &photo)
	if photo.ContentType != "image/png" || !strings.HasSuffix(photo.URL, ".png") || photo.PlaceID == nil {
		t.Fatalf("unexpected photo: %+v", photo)
	}
	stored := filepath.Join(srv.cfg.UploadDir, strings.TrimPrefix(photo.URL, "/uploads/"))
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	rec = doRequest(srv, http.MethodGet, photo.URL, "", nil)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), pngHeader) {
		t.Fatalf("serve upload = %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/photos?place_id="+place.ID, "", nil)
	var photos []photoResponse
	decodeBody(t, rec, &photos)
	if len(photos) != 1 || photos[0].ID != photo.ID {
		t.Fatalf("photos = %+v", photos)
	}

	if rec := doRequest(srv, http.MethodDelete, "/photos/"+photo.ID, otherToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete = %d, want 403", rec.Code)
	}
	if rec := doRequest(srv, http.MethodDelete, "/photos/"+photo.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", rec.Code)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Fatalf("file should be removed, stat err = %v", err)
	}
}

func TestHandleUploadPhoto_TooLarge(t *testing.T) {
	srv := buildTestServer(t)
	_, token := mustSession(t, srv)
	srv.cfg.UploadMaxBytes = 64

	content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 128)...)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, token, nil, content))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestHandleGoogleLogin_Disabled(t *testing.T) {
	srv := buildTestServer(t)
	for _, path := range []string{"/auth/google", "/auth/google/callback?code=x&state=y"} {
		if rec := doRequest(srv, http.MethodGet, path, "", nil); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s = %d, want 503", path, rec.Code)
		}
	}
}

func TestHandleGoogleCallback(t *testing.T) {
	picture := "https://img.example.com/me.png"
	provider := fakeProvider{profile: &oauth.Profile{
		ID:            "google-123",
		Email:         "traveller@example.com",
		Name:          "Traveller",
		Picture:       &picture,
		VerifiedEmail: true,
	}}
	srv := buildTestServer(t, withOAuth(t, provider))

	rec := doRequest(srv, http.MethodGet, "/auth/google", "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("login = %d, want 302", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	state := location.Query().Get("state")
	if state == "" {
		t.Fatalf("redirect lacks state: %s", location)
	}

	callback := "/auth/google/callback?code=abc&state=" + url.QueryEscape(state)
	rec = doRequest(srv, http.MethodGet, callback, "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback = %d, want 302 (%s)", rec.Code, rec.Body.String())
	}
	target, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse callback location: %v", err)
	}
	if target.Host != "localhost:5173" || target.Path != "/auth/callback" {
		t.Fatalf("unexpected redirect %s", target)
	}
	claims, err := srv.tokens.Verify(target.Query().Get("token"))
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Email != "traveller@example.com" {
		t.Fatalf("claims email = %q", claims.Email)
	}

	if rec := doRequest(srv, http.MethodGet, callback, "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("replayed state = %d, want 400", rec.Code)
	}
}

func TestHandleGoogleCallback_ProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"rejected grant", oauth.ErrInvalidGrant, http.StatusUnauthorized},
		{"breaker open", oauth.ErrUnavailable, http.StatusServiceUnavailable},
		{"upstream failure", fmt.Errorf("boom"), http.StatusBadGateway},
	}
	srv := buildTestServer(t, withOAuth(t, fakeProvider{}))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv.oauth = fakeProvider{err: tc.err}
			state, err := srv.states.New()
			if err != nil {
				t.Fatalf("new state: %v", err)
			}
			rec := doRequest(srv, http.MethodGet, "/auth/google/callback?code=abc&state="+url.QueryEscape(state), "", nil)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}
