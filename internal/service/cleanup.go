package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/bookworm/internal/media"
)

// cleanupTimeout bounds a best-effort delete on the media host.
const cleanupTimeout = 10 * time.Second

// destroyHosted deletes url from host when the host owns it. Failures are
// logged and swallowed. It runs detached from ctx's cancellation so a client
// disconnecting after a successful write does not abort the cleanup.
func destroyHosted(ctx context.Context, host media.Host, url string, logger *slog.Logger) {
	if url == "" || !host.Owns(url) {
		return
	}
	publicID := media.PublicIDFromURL(url)
	if publicID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := host.Destroy(ctx, publicID); err != nil {
		logger.Warn("failed to delete hosted image",
			slog.String("url", url),
			slog.String("publicID", publicID),
			slog.Any("error", err),
		)
		return
	}
	logger.Debug("deleted hosted image", slog.String("publicID", publicID))
}
