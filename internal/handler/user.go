package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/auth"
	"github.com/sakif/bookworm/internal/service"
)

// UserHandler serves the current user's profile and password endpoints.
type UserHandler struct {
	profiles       *service.ProfileService
	auth           *service.AuthService
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewUserHandler(profiles *service.ProfileService, authService *service.AuthService, maxUploadBytes int64, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		profiles:       profiles,
		auth:           authService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleProfile returns the caller's profile.
//
// HTTP: GET /api/users/profile → {data: user}
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type profileJSON struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// HandleUpdateMe applies a partial profile update.
//
// HTTP: PATCH /api/users/update-me
// Body: multipart/form-data with optional username, email and a "photo"
// file, or a JSON object without the photo. → {data: {user}}
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	update, err := h.parseProfileUpdate(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.profiles.UpdateMe(r.Context(), userID, update)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": user})
}

func (h *UserHandler) parseProfileUpdate(w http.ResponseWriter, r *http.Request) (service.ProfileUpdate, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		var body profileJSON
		if err := decodeJSON(w, r, maxAuthBody, &body); err != nil {
			return service.ProfileUpdate{}, err
		}
		return service.ProfileUpdate{
			Username:        body.Username,
			Email:           body.Email,
			Password:        body.Password,
			PasswordConfirm: body.PasswordConfirm,
		}, nil
	}

	// Room for the form fields on top of the photo itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.ProfileUpdate{}, apperror.ValidationFailed("photo", "Photo is too large")
		}
		return service.ProfileUpdate{}, apperror.ValidationFailed("", "Invalid multipart form")
	}

	update := service.ProfileUpdate{
		Username:        r.FormValue("username"),
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		PasswordConfirm: r.FormValue("passwordConfirm"),
	}

	file, _, err := r.FormFile("photo")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return update, nil
	case err != nil:
		return service.ProfileUpdate{}, apperror.ValidationFailed("photo", "Invalid photo upload")
	}
	defer file.Close()

	photo, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return service.ProfileUpdate{}, apperror.ValidationFailed("photo", "Invalid photo upload")
	}
	if int64(len(photo)) > h.maxUploadBytes {
		return service.ProfileUpdate{}, apperror.ValidationFailed("photo", "Photo is too large")
	}
	update.Photo = photo
	return update, nil
}

// HandleUpdatePassword changes the password and returns a fresh token.
//
// HTTP: PATCH /api/users/updateMyPassword
// Body: {passwordCurrent, password, passwordConfirm} → {token, user}
func (h *UserHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.PasswordChange
	if err := decodeJSON(w, r, maxAuthBody, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.UpdatePassword(r.Context(), userID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeAuth(w, http.StatusOK, res.Token, res.User)
}
