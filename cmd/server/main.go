// Command server runs the bookworm REST API.
//
// main stays small: load configuration, build the logger, hand both to
// internal/server and block until shutdown. Configuration comes from
// config.yaml (or CONFIG_PATH) and environment variables; JWT_SECRET is the
// only required setting.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/bookworm/internal/config"
	"github.com/sakif/bookworm/internal/logging"
	"github.com/sakif/bookworm/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.Any("error", err))
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.Any("error", err))
		return err
	}
	return nil
}
