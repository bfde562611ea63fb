// Package opsapi exposes a small read-only HTTP surface for operator
// visibility: current safety state, cache statistics, and a tail of the
// audit log. No endpoint accepts a write.
package opsapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// StatusProvider supplies the live safety/rate-limit/daily-counter snapshot.
type StatusProvider interface {
	Status() StatusSnapshot
}

// CacheStatsProvider supplies the resolution cache's CACHE_STATS snapshot
// as a JSON-marshalable value (internal/resolve.CacheStats).
type CacheStatsProvider interface {
	CacheStats() any
}

// AuditTailProvider returns the last n audit-log lines, newest last.
type AuditTailProvider interface {
	AuditTail(n int) ([]string, error)
}

// StatusSnapshot is the payload for GET /status.
type StatusSnapshot struct {
	KillSwitchActive    bool                    `json:"kill_switch_active"`
	KillSwitchReason    string                  `json:"kill_switch_reason,omitempty"`
	BrokerConnected     bool                    `json:"broker_connected"`
	DailyCounters       any                     `json:"daily_counters"`
	RateLimitOccupancy  map[string]int          `json:"rate_limit_occupancy"`
	BreakerStates       map[string]string       `json:"breaker_states"`
	GeneratedAt         time.Time               `json:"generated_at"`
}

// Config configures the ops API server.
type Config struct {
	Port      int
	AuthToken string
}

// Server is the chi-routed, logrus-logged operator status surface.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *logrus.Logger
	port   int
	token  string

	status     StatusProvider
	cacheStats CacheStatsProvider
	auditTail  AuditTailProvider
}

// NewServer wires the ops API's routes. Any provider may be nil; its
// endpoint then responds 503.
func NewServer(cfg Config, status StatusProvider, cacheStats CacheStatsProvider, auditTail AuditTailProvider, logger *logrus.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(), logger: logger, port: cfg.Port, token: cfg.AuthToken,
		status: status, cacheStats: cacheStats, auditTail: auditTail,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		if s.token != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/status", s.handleStatus)
		r.Get("/cache-stats", s.handleCacheStats)
		r.Get("/audit/tail", s.handleAuditTail)
	})
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("ops api request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		http.Error(w, "status provider not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.status.Status())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.cacheStats == nil {
		http.Error(w, "cache stats provider not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.cacheStats.CacheStats())
}

func (s *Server) handleAuditTail(w http.ResponseWriter, r *http.Request) {
	if s.auditTail == nil {
		http.Error(w, "audit tail provider not configured", http.StatusServiceUnavailable)
		return
	}
	n := 50
	lines, err := s.auditTail.AuditTail(n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"lines": lines})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Start begins serving and blocks until the listener errors or closes.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.WithField("port", s.port).Info("ops api server starting")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}
