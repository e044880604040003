package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kagent-dev/mcpchat/internal/version"
)

const (
	PathSSE      = "/sse"
	PathMessages = "/messages"
	PathMCP      = "/mcp"
	PathHealth   = "/healthz"
	PathVersion  = "/version"
	PathMetrics  = "/metrics"

	shutdownTimeout = 5 * time.Second
)

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	BindAddr string
	MCP      *server.MCPServer
	Metrics  *Metrics
}

// HTTPServer exposes an MCP server over SSE and streamable HTTP, next to the
// health, version and metrics endpoints.
type HTTPServer struct {
	config     ServerConfig
	router     *mux.Router
	sse        *server.SSEServer
	streamable *server.StreamableHTTPServer
	httpServer *http.Server
}

func NewHTTPServer(config ServerConfig) *HTTPServer {
	s := &HTTPServer{
		config:     config,
		router:     mux.NewRouter(),
		sse:        server.NewSSEServer(config.MCP, server.WithSSEEndpoint(PathSSE), server.WithMessageEndpoint(PathMessages)),
		streamable: server.NewStreamableHTTPServer(config.MCP, server.WithEndpointPath(PathMCP)),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router serving every endpoint.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRoutes() {
	s.router.Handle(PathSSE, s.sse.SSEHandler()).Methods(http.MethodGet)
	s.router.Handle(PathMessages, s.sse.MessageHandler()).Methods(http.MethodPost)
	s.router.Handle(PathMCP, s.streamable)

	s.router.HandleFunc(PathHealth, func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	s.router.HandleFunc(PathVersion, func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, version.Get())
	}).Methods(http.MethodGet)

	if s.config.Metrics != nil {
		s.router.Handle(PathMetrics, promhttp.HandlerFor(s.config.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx).WithName("http-server")
	log.Info("Starting HTTP server", "address", s.config.BindAddr)

	s.httpServer = &http.Server{
		Addr:    s.config.BindAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.streamable.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Failed to close streamable HTTP sessions")
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Failed to properly shutdown HTTP server")
		return err
	}
	return <-errCh
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
