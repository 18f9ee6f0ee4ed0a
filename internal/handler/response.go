package handler

// Every response uses the same envelope:
//
//	{"status": "success", "data": {...}}
//	{"status": "success", "results": 3, "data": [...]}
//	{"status": "success", "token": "...", "user": {...}}
//	{"status": "error", "message": "Username already exists"}
//
// Handlers never pick status codes for failures themselves; they hand the
// service error to writeError, which maps the apperror sentinel.

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/model"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

const internalErrorMessage = "Something went very wrong!"

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Status  string      `json:"status"`
	Results *int        `json:"results,omitempty"`
	Token   string      `json:"token,omitempty"`
	User    *model.User `json:"user,omitempty"`
	Data    any         `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// writeJSON sets the header and status before encoding; nothing written
// after the first body byte can change them.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are gone already; all we can do is log.
		slog.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Data: data})
}

func writeList(w http.ResponseWriter, results int, data any) {
	writeJSON(w, http.StatusOK, Envelope{Status: statusSuccess, Results: &results, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Message: message})
}

func writeAuth(w http.ResponseWriter, status int, token string, user *model.User) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Token: token, User: user})
}

// StatusFor maps a service error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends the error envelope. Messages of *apperror.AppError are
// shown as-is; anything else is logged and replaced by a generic message so
// SQL or file paths never reach the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, Envelope{Status: statusError, Message: internalErrorMessage})
		return
	}
	if status == http.StatusBadGateway {
		logger.Error("upstream failure", slog.Any("error", err))
	}

	writeJSON(w, status, Envelope{Status: statusError, Message: appErr.Message})
}

// decodeJSON reads a JSON body of at most maxBytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("", "Request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "Request body is required")
		default:
			return apperror.ValidationFailed("", "Invalid JSON body")
		}
	}
	return nil
}
