package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/ttygate/ttygate/internal/auth"
	"github.com/ttygate/ttygate/internal/config"
	"github.com/ttygate/ttygate/internal/crypto"
	"github.com/ttygate/ttygate/internal/database"
	"github.com/ttygate/ttygate/internal/handlers"
	"github.com/ttygate/ttygate/internal/logging"
	"github.com/ttygate/ttygate/internal/middleware"
	"github.com/ttygate/ttygate/internal/tmux"
)

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--hash-passphrase":
			runHashPassphrase()
			return
		}
	}

	if err := config.Load(); err != nil {
		log.Fatalf("Config: %v", err)
	}

	logging.Init()
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	secret, err := crypto.SigningSecret(config.Cfg.SecretKey)
	if err != nil {
		log.Fatalf("Signing secret: %v", err)
	}
	if config.Cfg.Debug {
		log.Printf("Signing secret resolved: %s", crypto.Mask(secret))
	}
	handlers.Tokens = auth.NewTokenManager(secret, config.Cfg.AccessTokenTTL, config.Cfg.RefreshTokenTTL)

	sessions := tmux.NewService()
	handlers.Sessions = sessions

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if !sessions.ServerAvailable(startCtx) {
		log.Printf("WARNING: tmux not available; session operations will fail until it is installed")
	}
	startCancel()

	// Periodic maintenance: prune old audit rows and stale login
	// rate-limit state.
	maintenance := cron.New()
	maintenance.AddFunc("@every 1h", func() {
		if n, err := database.PruneAudit(config.Cfg.AuditRetention); err != nil {
			log.Printf("Audit prune: %v", err)
		} else if n > 0 {
			log.Printf("Audit prune: removed %d events", n)
		}
		handlers.CleanupLoginAttempts()
	})
	maintenance.Start()
	defer maintenance.Stop()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth endpoints (no auth required)
		r.Post("/auth/login", handlers.Login)
		r.Post("/auth/refresh", handlers.Refresh)

		// Protected routes (require auth)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(handlers.Tokens))

			r.Get("/sessions", handlers.ListSessions)
			r.Post("/sessions", handlers.CreateSession)
			r.Get("/sessions/{id}", handlers.GetSession)
			r.Delete("/sessions/{id}", handlers.DeleteSession)
			r.Post("/sessions/{id}/attach", handlers.AttachSession)

			r.Get("/audit", handlers.GetAuditEvents)
		})
	})

	// Terminal WebSocket. Authenticates via token query parameter, not the
	// Authorization header, so it sits outside the RequireAuth group.
	r.Get("/ws/terminal/{sessionID}", handlers.TerminalWS)

	addr := fmt.Sprintf("%s:%d", config.Cfg.Host, config.Cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	if config.Cfg.TLS {
		cert, err := crypto.ServerCertificate(config.Cfg.Host)
		if err != nil {
			log.Fatalf("TLS certificate: %v", err)
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		var err error
		if config.Cfg.TLS {
			log.Printf("Server starting on %s (TLS)", addr)
			err = srv.ListenAndServeTLS("", "")
		} else {
			log.Printf("Server starting on %s", addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// runHashPassphrase prints a bcrypt hash suitable for TTYGATE_PASSPHRASE_HASH.
func runHashPassphrase() {
	fs := flag.NewFlagSet("hash-passphrase", flag.ExitOnError)
	passphrase := fs.String("passphrase", "", "Passphrase to hash")
	fs.Parse(os.Args[2:])

	if *passphrase == "" {
		fmt.Fprintln(os.Stderr, "Usage: ttygate --hash-passphrase --passphrase <value>")
		os.Exit(1)
	}

	hash, err := auth.HashPassphrase(*passphrase)
	if err != nil {
		log.Fatalf("Failed to hash passphrase: %v", err)
	}
	fmt.Println(hash)
}
