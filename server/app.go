package server

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/mscno/safereport/server/middleware"
)

const (
	DefaultRateLimit = time.Second / 2
	DefaultRateBurst = 10
)

// APIOptions configures the middleware around the route table.
type APIOptions struct {
	Addr           string
	AllowedOrigins []string
	// RateEvery is the refill interval of the per-client bucket on the
	// anonymous write endpoints. Zero selects DefaultRateLimit.
	RateEvery time.Duration
	RateBurst int
}

// NewAPIServer assembles the HTTP server: recovery, request logging, CORS
// and authentication around every route, plus rate limiting on submission
// and chat.
func NewAPIServer(h *Handler, validate middleware.TokenValidator, opts APIOptions, logger *slog.Logger) (*HTTPServer, *middleware.RateLimiter) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RateEvery <= 0 {
		opts.RateEvery = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}

	limiter := middleware.NewRateLimiter(logger, middleware.IPAddressKeyFunc, rate.Every(opts.RateEvery), opts.RateBurst)
	srv := NewHTTPServer(opts.Addr, logger)
	srv.Use(
		middleware.WithRecovery(logger),
		middleware.WithLogger(logger),
		middleware.WithCORS(logger, opts.AllowedOrigins...),
		middleware.WithAuth(validate, logger),
	)
	h.RegisterRoutes(srv, func(next http.Handler) http.Handler { return limiter.Limit(next) })
	return srv, limiter
}
