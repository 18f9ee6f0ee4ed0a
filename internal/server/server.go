// Package server is the composition root: it opens the database and media
// host, wires repositories → services → handlers, mounts the routes and runs
// the HTTP server with graceful shutdown.
//
// ROUTES:
//
//	GET    /                            liveness ("Hello World")
//	GET    /healthz                     readiness incl. database ping
//	GET    /metrics                     Prometheus
//	GET    /media/*                     files of the local media host
//	POST   /api/auth/register           rate limited
//	POST   /api/auth/login              rate limited
//	GET    /api/auth/github/login       only when GitHub is configured
//	GET    /api/auth/github/callback
//	POST   /api/books                   bearer
//	GET    /api/books                   bearer
//	GET    /api/books/user              bearer
//	DELETE /api/books/{id}              bearer
//	GET    /api/users/profile           bearer
//	PATCH  /api/users/update-me         bearer
//	PATCH  /api/users/updateMyPassword  bearer
//
// MIDDLEWARE ORDER MATTERS: RequestID runs first so the logger can print it,
// Recoverer sits inside Logger so a panic is still logged as a 500.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/bookworm/internal/auth"
	"github.com/sakif/bookworm/internal/config"
	"github.com/sakif/bookworm/internal/handler"
	"github.com/sakif/bookworm/internal/media"
	"github.com/sakif/bookworm/internal/middleware"
	sqliteRepo "github.com/sakif/bookworm/internal/repository/sqlite"
	"github.com/sakif/bookworm/internal/service"
)

// Server owns the router and the resources closed on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	media  media.Host
	local  *media.LocalHost // non-nil when media is served from this process
}

// New opens the database and media host named in cfg and wires everything.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	host, local, err := newMediaHost(ctx, cfg.Media, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating media host: %w", err)
	}

	s, err := newServer(cfg, logger, db, host, local)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newMediaHost(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger) (media.Host, *media.LocalHost, error) {
	switch cfg.Backend {
	case config.MediaBackendS3:
		s3Host, err := media.NewS3Host(ctx, cfg.S3, logger)
		if err != nil {
			return nil, nil, err
		}
		breaker := media.NewBreakerHost(s3Host, "s3", cfg.Breaker.FailureThreshold, cfg.Breaker.OpenTimeout, logger)
		return breaker, nil, nil
	default:
		local, err := media.NewLocalHost(cfg.Local.Dir, cfg.Local.PublicURL)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
}

// newServer wires already-open dependencies. Tests call it with an in-memory
// database and a MemMapFs-backed LocalHost.
func newServer(cfg *config.Config, logger *slog.Logger, db *sqliteRepo.DB, host media.Host, local *media.LocalHost) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		media:  host,
		local:  local,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService(s.config.Auth.BcryptCost)

	users := s.db.Users()
	authService := service.NewAuthService(users, tokens, passwords, s.logger)
	bookService := service.NewBookService(s.db.Books(), s.media, s.logger)
	profileService := service.NewProfileService(users, s.media, s.logger)

	var github handler.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(
			s.config.Auth.GitHubClientID,
			s.config.Auth.GitHubClientSecret,
			s.config.Auth.GitHubCallbackURL,
		)
	}

	authHandler := handler.NewAuthHandler(authService, github, s.logger)
	bookHandler := handler.NewBookHandler(bookService, s.config.Media.MaxUploadBytes, s.logger)
	userHandler := handler.NewUserHandler(profileService, authService, s.config.Media.MaxUploadBytes, s.logger)
	var breaker handler.BreakerState
	if b, ok := s.media.(*media.BreakerHost); ok {
		breaker = b
	}
	healthHandler := handler.NewHealthHandler(s.db, breaker, s.logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(s.config.Security.CORSOrigins))

	r.Get("/", healthHandler.HandleRoot)
	r.Get("/healthz", healthHandler.HandleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	if s.local != nil {
		r.Handle("/media/*", http.StripPrefix("/media/", s.local))
	}

	limit := middleware.RateLimitByIP(
		s.config.Security.RateLimitRequests,
		s.config.Security.RateLimitWindow,
		s.config.Security.RateLimitDisabled,
	)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit).Post("/register", authHandler.HandleRegister)
			r.With(limit).Post("/login", authHandler.HandleLogin)

			if github != nil {
				r.With(limit).Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Route("/books", func(r chi.Router) {
				r.Post("/", bookHandler.HandleCreate)
				r.Get("/", bookHandler.HandleList)
				r.Get("/user", bookHandler.HandleListMine)
				r.Delete("/{id}", bookHandler.HandleDelete)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/profile", userHandler.HandleProfile)
				r.Patch("/update-me", userHandler.HandleUpdateMe)
				r.Patch("/updateMyPassword", userHandler.HandleUpdatePassword)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"Route not found"}`))
	})

	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for
// ShutdownTimeout and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("database", s.config.Database.Path),
			slog.String("media", s.config.Media.Backend),
			slog.String("cors", strings.Join(s.config.Security.CORSOrigins, ",")),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
