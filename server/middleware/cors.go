package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/cors"
)

type corsLogger struct {
	logger *slog.Logger
}

func (c *corsLogger) Printf(format string, args ...interface{}) {
	c.logger.Debug(fmt.Sprintf("CORS: %s", fmt.Sprintf(format, args...)))
}

// WithCORS adds CORS handling for the given origins. No origins allows all.
func WithCORS(logger *slog.Logger, allowedOrigins ...string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
		Logger:         &corsLogger{logger: logger},
	})
	return c.Handler
}
