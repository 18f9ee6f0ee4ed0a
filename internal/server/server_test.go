package server

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookworm/internal/config"
	"github.com/sakif/bookworm/internal/media"
	"github.com/sakif/bookworm/internal/model"
	sqliteRepo "github.com/sakif/bookworm/internal/repository/sqlite"
)

const testMediaURL = "http://bookworm.test/media"

type envelope struct {
	Status  string          `json:"status"`
	Results *int            `json:"results"`
	Token   string          `json:"token"`
	User    *model.User     `json:"user"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Path: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret-at-least-16-chars!!",
			TokenTTL:   time.Hour,
			BcryptCost: 4,
		},
		Media: config.MediaConfig{
			Backend:        config.MediaBackendLocal,
			MaxUploadBytes: 1 << 20,
		},
		Security: config.SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitDisabled: true,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	local := media.NewLocalHostFs(afero.NewMemMapFs(), testMediaURL)
	logger := slog.New(slog.DiscardHandler)

	s, err := newServer(cfg, logger, db, local, local)
	require.NoError(t, err)
	return &testServer{t: t, handler: s.Handler()}
}

func (ts *testServer) do(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (ts *testServer) doJSON(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req, token)
}

func (ts *testServer) register(username, email string) (string, *model.User) {
	ts.t.Helper()
	rec, env := ts.doJSON(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "secret123",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotEmpty(ts.t, env.Token)
	return env.Token, env.User
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURL(b []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
}

func (ts *testServer) createBook(token, title string, rating any) model.Book {
	ts.t.Helper()
	rec, env := ts.doJSON(http.MethodPost, "/api/books", token, map[string]any{
		"title":   title,
		"caption": "worth reading",
		"rating":  rating,
		"image":   dataURL(pngBytes(ts.t, 8, 8, color.White)),
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())

	var book model.Book
	require.NoError(ts.t, json.Unmarshal(env.Data, &book))
	return book
}

func (ts *testServer) mediaStatus(url string) int {
	ts.t.Helper()
	rec, _ := ts.do(httptest.NewRequest(http.MethodGet, "/media/"+media.PublicIDFromURL(url), nil), "")
	return rec.Code
}

func photoForm(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("photo", "me.png")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) updateMe(token string, fields map[string]string, photo []byte) (*httptest.ResponseRecorder, *model.User) {
	ts.t.Helper()
	body, contentType := photoForm(ts.t, fields, photo)
	req := httptest.NewRequest(http.MethodPatch, "/api/users/update-me", body)
	req.Header.Set("Content-Type", contentType)
	rec, env := ts.do(req, token)

	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var data struct {
		User *model.User `json:"user"`
	}
	require.NoError(ts.t, json.Unmarshal(env.Data, &data))
	return rec, data.User
}

// =========================================================================
// LIVENESS
// =========================================================================

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec, _ := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello World", rec.Body.String())

	rec, env := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"database":"up"}`, string(env.Data))

	rec, env = ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", env.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.do(httptest.NewRequest(http.MethodGet, "/", nil), "")

	rec, _ := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bookworm_http_requests_total")
}

// =========================================================================
// AUTH
// =========================================================================

func TestRegisterLoginFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())

	_, user := ts.register("reader", "Reader@Example.com")
	assert.Equal(t, "reader@example.com", user.Email)
	assert.NotEmpty(t, user.ProfileImage)

	rec, env := ts.doJSON(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "other", "email": "reader@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already exists", env.Message)

	rec, env = ts.doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "reader@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", env.Message)

	rec, env = ts.doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "reader@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, env.Token)
	assert.Equal(t, user.ID, env.User.ID)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegister_InvalidJSON(t *testing.T) {
	ts := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{nope"))
	rec, env := ts.do(req, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", env.Message)
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitDisabled = false
	cfg.Security.RateLimitRequests = 2
	cfg.Security.RateLimitWindow = time.Minute
	ts := newTestServer(t, cfg)

	var rec *httptest.ResponseRecorder
	for range 3 {
		rec, _ = ts.doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
	}
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGitHubRoutesAbsentWhenUnconfigured(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec, _ := ts.do(httptest.NewRequest(http.MethodGet, "/api/auth/github/login", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t, testConfig())

	for _, path := range []string{"/api/books", "/api/books/user", "/api/users/profile"} {
		rec, env := ts.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "No authentication token, access denied", env.Message, path)
	}

	rec, _ := ts.do(httptest.NewRequest(http.MethodGet, "/api/users/profile", nil), "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =========================================================================
// BOOKS
// =========================================================================

func TestBooks_CreateListDelete(t *testing.T) {
	ts := newTestServer(t, testConfig())
	alice, _ := ts.register("alice", "alice@example.com")
	bob, _ := ts.register("bob", "bob@example.com")

	dune := ts.createBook(alice, "Dune", 5)
	ts.createBook(alice, "Emma", "3") // rating as a string
	ts.createBook(bob, "Dracula", 4)

	assert.True(t, strings.HasPrefix(dune.Image, testMediaURL+"/"))
	assert.Equal(t, http.StatusOK, ts.mediaStatus(dune.Image))

	rec, env := ts.doJSON(http.MethodGet, "/api/books?limit=2&sort=-rating", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page model.BookPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 2, *env.Results)
	assert.Equal(t, 3, page.TotalBooks)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, "Dune", page.Books[0].Title)
	assert.Equal(t, "alice", page.Books[0].User.Username)

	rec, env = ts.doJSON(http.MethodGet, "/api/books?title=DR", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Books, 1)
	assert.Equal(t, "Dracula", page.Books[0].Title)
	assert.Equal(t, 1, page.TotalPages)

	rec, env = ts.doJSON(http.MethodGet, "/api/books?sort=title", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "Invalid sort")

	rec, env = ts.doJSON(http.MethodGet, "/api/books/user", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, *env.Results)

	rec, env = ts.doJSON(http.MethodDelete, "/api/books/"+dune.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You can only delete your own books", env.Message)

	rec, env = ts.doJSON(http.MethodDelete, "/api/books/"+dune.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Book deleted successfully", env.Message)
	assert.Equal(t, http.StatusNotFound, ts.mediaStatus(dune.Image))

	rec, _ = ts.doJSON(http.MethodDelete, "/api/books/"+dune.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBooks_CreateValidation(t *testing.T) {
	ts := newTestServer(t, testConfig())
	token, _ := ts.register("alice", "alice@example.com")

	rec, env := ts.doJSON(http.MethodPost, "/api/books", token, map[string]any{"title": "Dune"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please provide all fields", env.Message)

	rec, env = ts.doJSON(http.MethodPost, "/api/books", token, map[string]any{
		"title": "Dune", "caption": "spice", "rating": 9, "image": dataURL(pngBytes(t, 2, 2, color.Black)),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Rating must be between 1 and 5", env.Message)
}

// =========================================================================
// PROFILE
// =========================================================================

func TestUpdateMe_ReplacesPhotoAndCleansUpOldOne(t *testing.T) {
	ts := newTestServer(t, testConfig())
	token, _ := ts.register("alice", "alice@example.com")

	rec, first := ts.updateMe(token, map[string]string{"username": "alice2"}, pngBytes(t, 40, 20, color.White))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice2", first.Username)
	assert.Equal(t, http.StatusOK, ts.mediaStatus(first.ProfileImage))

	rec, second := ts.updateMe(token, nil, pngBytes(t, 20, 40, color.Black))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, first.ProfileImage, second.ProfileImage)
	assert.Equal(t, http.StatusNotFound, ts.mediaStatus(first.ProfileImage))
	assert.Equal(t, http.StatusOK, ts.mediaStatus(second.ProfileImage))

	rec, env := ts.doJSON(http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile model.User
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, second.ProfileImage, profile.ProfileImage)
}

func TestUpdateMe_ConflictAndPasswordRejected(t *testing.T) {
	ts := newTestServer(t, testConfig())
	token, _ := ts.register("alice", "alice@example.com")
	ts.register("bob", "bob@example.com")

	rec, _ := ts.updateMe(token, map[string]string{"username": "bob"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username already exists")

	rec, _ = ts.updateMe(token, map[string]string{"password": "newsecret"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "/updateMyPassword")

	rec, _ = ts.updateMe(token, nil, []byte("plain text, not a picture"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not an image!")
}

func TestUpdateMe_JSONBody(t *testing.T) {
	ts := newTestServer(t, testConfig())
	token, _ := ts.register("alice", "alice@example.com")

	rec, env := ts.doJSON(http.MethodPatch, "/api/users/update-me", token, map[string]string{"email": "New@Example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"email":"new@example.com"`)
}

func TestUpdatePassword(t *testing.T) {
	ts := newTestServer(t, testConfig())
	token, _ := ts.register("alice", "alice@example.com")

	rec, env := ts.doJSON(http.MethodPatch, "/api/users/updateMyPassword", token, map[string]string{
		"passwordCurrent": "wrong-one", "password": "brandnew1", "passwordConfirm": "brandnew1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Current password is incorrect.", env.Message)

	rec, env = ts.doJSON(http.MethodPatch, "/api/users/updateMyPassword", token, map[string]string{
		"passwordCurrent": "secret123", "password": "brandnew1", "passwordConfirm": "brandnew1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, env.Token)

	rec, _ = ts.doJSON(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "brandnew1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
