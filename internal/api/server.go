// Package api serves the user-facing JSON API. Each bearer token maps to one
// server-side session holding the signed-in identity and its cached profile.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/HookRelay/internal/service"
	"github.com/digkill/HookRelay/internal/session"
)

type Server struct {
	addr       string
	log        *slog.Logger
	builder    *session.Builder
	sessions   *session.Registry
	tokens     *TokenIssuer
	plans      *service.PlanService
	payments   *service.PaymentService
	usage      *service.UsageService
	webhookURL string
	router     *chi.Mux
}

type Options struct {
	Addr       string
	WebhookURL string
}

func NewServer(opts Options, log *slog.Logger, builder *session.Builder, sessions *session.Registry, tokens *TokenIssuer, plans *service.PlanService, payments *service.PaymentService, usage *service.UsageService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	s := &Server{
		addr:       opts.Addr,
		log:        log,
		builder:    builder,
		sessions:   sessions,
		tokens:     tokens,
		plans:      plans,
		payments:   payments,
		usage:      usage,
		webhookURL: opts.WebhookURL,
		router:     r,
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/plans", s.handleListPlans)

		r.Group(func(protected chi.Router) {
			protected.Use(s.sessionMiddleware)
			protected.Post("/auth/logout", s.handleLogout)
			protected.Get("/profile", s.handleGetProfile)
			protected.Patch("/profile", s.handleUpdateProfile)
			protected.Post("/profile/auth-key", s.handleRegenerateAuthKey)
			protected.Post("/profile/access-id", s.handleRegenerateAccessID)
			protected.Post("/profile/email", s.handleChangeEmail)
			protected.Post("/payments/checkout", s.handleCheckout)
			protected.Post("/payments/confirm", s.handleConfirmPayment)
			protected.Get("/usage", s.handleUsage)
			protected.Get("/webhook", s.handleWebhookDocs)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// SweepSessions drops idle sessions every interval until ctx is done.
func (s *Server) SweepSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.log.Debug("swept idle sessions", "count", n)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
