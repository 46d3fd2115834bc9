// Package web provides the HTTP server and handlers for the dispatch batch UI.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akl-logistics/dispatchdesk/internal/config"
	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
	"github.com/akl-logistics/dispatchdesk/internal/history"
	mw "github.com/akl-logistics/dispatchdesk/internal/web/middleware"
)

// Directory is the slice of the order-management backend the paste screen
// needs for its pickers. Satisfied by *orderapi.Client.
type Directory interface {
	ListDrivers(ctx context.Context) ([]dispatch.Driver, error)
	ListCustomers(ctx context.Context) ([]dispatch.Customer, error)
	ListLocations(ctx context.Context) ([]dispatch.Location, error)
}

// HistoryStore is the read side of the batch history database.
// Satisfied by *history.Store; nil disables the history endpoints.
type HistoryStore interface {
	ListRecent(ctx context.Context, limit int) ([]history.BatchSummary, error)
	GetBatch(ctx context.Context, batchID string) (*history.BatchRecord, error)
}

// Server is the HTTP server for the dispatch batch application.
type Server struct {
	service   *dispatch.Service
	directory Directory
	history   HistoryStore
	cfg       *config.Config
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a new Server instance. hist may be nil when batch
// history is not configured.
func NewServer(service *dispatch.Service, directory Directory, hist HistoryStore, cfg *config.Config) *Server {
	s := &Server{
		service:   service,
		directory: directory,
		history:   hist,
		cfg:       cfg,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Pages
	s.router.Get("/", s.handlePasteScreen)
	s.router.Get("/batches/{batchID}", s.handleBatchReportPage)

	s.router.Get("/healthz", s.handleHealthz)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// Batch operations
		r.Post("/batches/preview", s.handlePreview)
		if s.cfg.Rate.Enabled {
			// Tighter limit on batch starts: each one fans out into
			// many backend calls.
			batchLimiter := newRateLimiter(s.cfg.Rate.BatchLimit, time.Minute)
			r.With(batchLimiter.middleware).Post("/batches", s.handleStartBatch)
		} else {
			r.Post("/batches", s.handleStartBatch)
		}
		r.Get("/batches/{batchID}/progress", s.handleBatchProgress)
		r.Post("/batches/{batchID}/cancel", s.handleCancelBatch)
		r.Get("/batches/{batchID}/result", s.handleBatchResult)
		r.Get("/batches/{batchID}/report.txt", s.handleBatchReportText)

		// Snapshot proxies for the paste screen
		r.Get("/drivers", s.handleListDrivers)
		r.Get("/customers", s.handleListCustomers)
		r.Get("/locations", s.handleListLocations)

		// Batch history, available only when a database is configured
		if s.history != nil {
			r.Get("/history", s.handleHistoryList)
			r.Get("/history/{batchID}", s.handleHistoryDetail)
		}

		// Queue status for monitoring
		r.Get("/batches/status", s.handleQueueStatus)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // zero for SSE
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			// XSS protection (legacy but still useful for older browsers)
			w.Header().Set("X-XSS-Protection", "1; mode=block")

			if enableCSP {
				// Content Security Policy - restrict resource loading
				// Inline script and styles carry the paste screen
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; connect-src 'self'")
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	// Check if we have tokens left
	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
// TrustedRealIP has already rewritten RemoteAddr by the time this runs.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeError writes a JSON error response.
// Logs the full error server-side but returns a sanitized message to the client.
func writeError(w http.ResponseWriter, status int, message string) {
	// Log full error for debugging/audit
	slog.Warn("http error", "status", status, "message", message)

	// Sanitize before sending to client
	safeMessage := sanitizeErrorMessage(message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, safeMessage)
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
