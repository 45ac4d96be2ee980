package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-michi/michi"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	maxHeaderBytes    = 1 << 20
	readTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
)

// HTTPServer serves the API over HTTP/1.1 and cleartext HTTP/2.
type HTTPServer struct {
	Server *http.Server
	Router *michi.Router

	middleware  []func(http.Handler) http.Handler
	routesAdded bool
	logger      *slog.Logger
}

// NewHTTPServer creates a server listening on addr once started.
func NewHTTPServer(addr string, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	router := michi.NewRouter()
	s := &HTTPServer{
		Router: router,
		logger: logger,
		Server: &http.Server{
			Addr:              addr,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			MaxHeaderBytes:    maxHeaderBytes,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
	s.rebuildHandlerChain()
	return s
}

// Use adds middleware to the server. The first middleware is outermost.
func (s *HTTPServer) Use(mw ...func(http.Handler) http.Handler) {
	if s.routesAdded {
		panic("cannot add middleware after routes are registered")
	}
	s.middleware = append(s.middleware, mw...)
	s.rebuildHandlerChain()
}

// Handle registers handler for pattern on the router.
func (s *HTTPServer) Handle(pattern string, handler http.Handler) {
	s.routesAdded = true
	s.Router.Handle(pattern, handler)
}

// ServeHTTP implements the http.Handler interface
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Server.Handler.ServeHTTP(w, r)
}

// ListenAndServe blocks until the server is shut down.
func (s *HTTPServer) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.Server.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener until the server is shut down.
func (s *HTTPServer) Serve(l net.Listener) error {
	if err := s.Server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Debug("shutting down server")
	if err := s.Server.Shutdown(ctx); err != nil {
		s.logger.Error("error shutting down server", "error", err)
		return err
	}
	return nil
}

func (s *HTTPServer) rebuildHandlerChain() {
	var handler http.Handler = s.Router
	handler = applyMiddleware(handler, s.middleware...)
	s.Server.Handler = h2c.NewHandler(handler, &http2.Server{})
}

func applyMiddleware(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	// Reverse order so the first middleware in the slice is the outermost.
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
