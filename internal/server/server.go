// Package server exposes the relay over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logx "vercelgram/pkg/logx"
)

const (
	DefaultAddr         = ":8080"
	DefaultPath         = "/webhook"
	DefaultMaxBodyBytes = 1 << 20

	shutdownGrace = 5 * time.Second
)

type Config struct {
	Addr              string
	Path              string
	ReadHeaderTimeout time.Duration
	MaxBodyBytes      int64
}

type route struct{ h http.Handler }

// Server serves the webhook route and /healthz.
//
// The webhook handler can be replaced while serving; requests already in
// flight finish on the handler they started with.
type Server struct {
	cfg Config
	log logx.Logger

	webhook atomic.Pointer[route]

	mu sync.Mutex
	ln net.Listener
}

func New(cfg Config, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	cfg.Path = normalizePath(cfg.Path)
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, log: log}
}

// SetWebhook installs h behind the signature check for secret.
func (s *Server) SetWebhook(h http.Handler, secret string) {
	s.webhook.Store(&route{h: requireSignature(secret, s.cfg.MaxBodyBytes, s.log, h)})
}

// Handler returns the server's routing handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt := s.webhook.Load()
		if rt == nil || rt.h == nil {
			http.Error(w, "Error processing webhook", http.StatusServiceUnavailable)
			return
		}
		rt.h.ServeHTTP(w, r)
	})
	return mux
}

// Addr returns the bound listener address ("" when not serving).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Run listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.ln = nil
		s.mu.Unlock()
	}()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("http shutdown incomplete", logx.Err(err))
			_ = srv.Close()
		}
	}()

	s.log.Info("listening", logx.String("addr", ln.Addr().String()), logx.String("path", s.cfg.Path))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		s.log.Info("http server stopped")
		return nil
	}
	return err
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
