package media

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrHostUnavailable is returned while the breaker is open.
var ErrHostUnavailable = errors.New("media: host temporarily unavailable")

// BreakerHost trips after FailureThreshold consecutive failures and rejects
// calls until OpenTimeout elapses, then lets one probe through.
type BreakerHost struct {
	next Host
	cb   *gobreaker.CircuitBreaker[string]
}

var _ Host = (*BreakerHost)(nil)

// NewBreakerHost wraps next. name labels the breaker in logs and metrics.
func NewBreakerHost(next Host, name string, failureThreshold uint32, openTimeout time.Duration, logger *slog.Logger) *BreakerHost {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		// A cancelled request says nothing about the host.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("media circuit breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			BreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return &BreakerHost{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[string](settings),
	}
}

func (b *BreakerHost) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	url, err := b.cb.Execute(func() (string, error) {
		return b.next.Upload(ctx, data, contentType)
	})
	return url, translateBreakerErr(err)
}

func (b *BreakerHost) Destroy(ctx context.Context, publicID string) error {
	_, err := b.cb.Execute(func() (string, error) {
		return "", b.next.Destroy(ctx, publicID)
	})
	return translateBreakerErr(err)
}

func (b *BreakerHost) Owns(url string) bool {
	return b.next.Owns(url)
}

// State is the breaker state name, e.g. "closed".
func (b *BreakerHost) State() string {
	return b.cb.State().String()
}

func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrHostUnavailable
	}
	return err
}
