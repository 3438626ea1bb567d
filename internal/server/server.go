// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"faixabet-api/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewRouter(h *Handlers, l *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		requestID,
		middleware.RealIP,
		middleware.Recoverer,
		accessLog(l),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/public-key", h.PublicKey)
		r.Post("/check-email", h.CheckEmail)
		r.Post("/register-and-checkout", h.RegisterAndCheckout)
		r.Get("/payment-success", h.PaymentSuccess)
		r.Post("/stripe/webhook", h.StripeWebhook)
		r.Get("/health", h.Health)
	})

	return r
}

func NewServer(cfg Config, h *Handlers, l *logger.Logger) *Server {
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      NewRouter(h, l),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		server: httpServer,
		logger: l,
	}
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
