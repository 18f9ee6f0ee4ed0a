package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is satisfied by the database handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerState reports the circuit breaker state of the remote media host.
type BreakerState interface {
	State() string
}

type HealthHandler struct {
	db     Pinger
	media  BreakerState
	logger *slog.Logger
}

// NewHealthHandler builds the health endpoints. media may be nil when
// uploads are stored locally.
func NewHealthHandler(db Pinger, media BreakerState, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, media: media, logger: logger}
}

// HandleRoot is the plain-text liveness check.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello World"))
}

type healthStatus struct {
	Database string `json:"database"`
	Media    string `json:"media,omitempty"`
}

// HandleHealthz reports readiness; 503 when the database does not answer.
// An open media breaker is reported but does not fail the check.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Database: "up"}
	if h.media != nil {
		status.Media = h.media.State()
	}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check: database ping failed", slog.Any("error", err))
		status.Database = "down"
		writeJSON(w, http.StatusServiceUnavailable, Envelope{
			Status: statusError,
			Data:   status,
		})
		return
	}
	writeData(w, http.StatusOK, status)
}
