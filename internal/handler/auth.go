package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/bookworm/internal/auth"
	"github.com/sakif/bookworm/internal/service"
)

// Small JSON bodies: credentials and password changes.
const maxAuthBody = 16 << 10

const stateCookie = "oauth_state"

// GitHubProvider is the OAuth exchange used by the optional GitHub login.
type GitHubProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves registration, login and the optional GitHub flow.
type AuthHandler struct {
	auth   *service.AuthService
	github GitHubProvider // nil when GitHub login is not configured
	logger *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, github GitHubProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		github: github,
		logger: logger,
	}
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register  {username, email, password} → 201 {token, user}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, maxAuthBody, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeAuth(w, http.StatusCreated, res.Token, res.User)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin checks credentials.
//
// HTTP: POST /api/auth/login  {email, password} → 200 {token, user}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, maxAuthBody, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeAuth(w, http.StatusOK, res.Token, res.User)
}

// HandleGitHubLogin redirects to GitHub's authorization page.
//
// HTTP: GET /api/auth/github/login
//
// A random state goes into a short-lived HttpOnly cookie and the authorize
// URL; the callback only proceeds when both match (CSRF protection).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the OAuth flow and returns our own JWT.
//
// HTTP: GET /api/auth/github/callback?code=...&state=... → 200 {token, user}
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, Envelope{Status: statusError, Message: "Invalid OAuth state"})
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/api/auth/github", MaxAge: -1})

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		writeJSON(w, http.StatusUnauthorized, Envelope{Status: statusError, Message: "GitHub authorization was denied"})
		return
	}

	code := q.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, Envelope{Status: statusError, Message: "Missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.Any("error", err))
		writeJSON(w, http.StatusBadGateway, Envelope{Status: statusError, Message: "GitHub authentication failed"})
		return
	}

	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeAuth(w, http.StatusOK, res.Token, res.User)
}
