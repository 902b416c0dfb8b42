package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

type ServerConfig struct {
	Host           string
	Port           int
	WebhookPath    string
	Webhook        http.Handler
	MetricsPath    string
	Metrics        http.Handler // optional
	HandlerTimeout time.Duration
	Logger         *slog.Logger
}

// Server hosts the webhook, health and metrics endpoints.
type Server struct {
	addr    string
	handler http.Handler
	timeout time.Duration
	logger  *slog.Logger
	server  *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook/telegram"
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 90 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.WebhookPath, cfg.Webhook)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(rw, "ok")
	})
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, cfg.Metrics)
	}

	return &Server{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		handler: mux,
		timeout: cfg.HandlerTimeout,
		logger:  cfg.Logger,
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.timeout + 20*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}
