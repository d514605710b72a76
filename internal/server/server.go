// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer — the composition root where the whole
// dependency chain is assembled:
//
//	sqlite.DB → repositories → services → handlers → routes
//
// Each layer only receives what it needs: services get repository
// interfaces (not the concrete sqlite.DB), handlers get services (not
// repositories), and nothing below the handler layer knows HTTP exists.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jardiel79162-commits/remixhub/internal/auth"
	"github.com/jardiel79162-commits/remixhub/internal/github"
	"github.com/jardiel79162-commits/remixhub/internal/handler"
	"github.com/jardiel79162-commits/remixhub/internal/mercadopago"
	"github.com/jardiel79162-commits/remixhub/internal/middleware"
	sqliteRepo "github.com/jardiel79162-commits/remixhub/internal/repository/sqlite"
	"github.com/jardiel79162-commits/remixhub/internal/service"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port             int
	DBPath           string
	JWTSecret        string
	MercadoPagoToken string
}

// Server owns the router and the resources that need closing on shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server and wires the full dependency graph.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware, builds the services, and mounts routes.
//
// ROUTE STRUCTURE:
//
//	POST   /api/auth/signup            → register, returns JWT
//	POST   /api/auth/login             → login, returns JWT
//	GET    /api/profile                → authenticated profile (credits)
//	POST   /api/remix                  → start a remix, SSE progress stream
//	GET    /api/remix/history          → history list
//	GET    /api/remix/history/{id}     → one record with full transcript
//	DELETE /api/remix/history/{id}     → delete a record
//	POST   /api/payments               → create PIX payment (QR code)
//	GET    /api/payments/{id}/status   → poll payment status
//	GET    /api/payments/{id}/recover  → recover pending checkout
//	POST   /api/payments/webhook       → Mercado Pago notifications (no auth)
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	users := sqliteRepo.NewUserRepo(s.db)
	remixes := sqliteRepo.NewRemixRepo(s.db)
	payments := sqliteRepo.NewPaymentRepo(s.db)

	quotaSvc := service.NewQuotaService(remixes, users)
	remixSvc := service.NewRemixService(remixes, users, quotaSvc,
		func(token string) github.GitClient { return github.NewClient(token) },
		s.logger,
	)
	authSvc := service.NewAuthService(users, tokens, passwords, s.logger)
	paymentSvc := service.NewPaymentService(payments, users,
		mercadopago.New(s.config.MercadoPagoToken), s.logger)

	authHandler := handler.NewAuthHandler(authSvc, s.logger)
	remixHandler := handler.NewRemixHandler(remixSvc, s.logger)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, s.logger)

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", authHandler.HandleSignUp)
		r.Post("/auth/login", authHandler.HandleLogin)

		// The provider calls the webhook — it cannot carry our JWT.
		r.Post("/payments/webhook", paymentHandler.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/profile", authHandler.HandleProfile)

			r.Post("/remix", remixHandler.HandleRemix)
			r.Get("/remix/history", remixHandler.HandleHistoryList)
			r.Get("/remix/history/{id}", remixHandler.HandleHistoryGet)
			r.Delete("/remix/history/{id}", remixHandler.HandleHistoryDelete)

			r.Post("/payments", paymentHandler.HandleCreate)
			r.Get("/payments/{id}/status", paymentHandler.HandleStatus)
			r.Get("/payments/{id}/recover", paymentHandler.HandleRecover)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown:
//  1. Stop accepting new connections on SIGINT/SIGTERM
//  2. Wait for in-flight requests (30s) — running remix jobs keep streaming
//  3. Close the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
		// No WriteTimeout: the remix stream is long-lived — a fixed write
		// deadline would cut jobs off mid-copy. Read timeouts still apply.
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
