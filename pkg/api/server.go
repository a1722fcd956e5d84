package api

import (
	"net/http"
	"time"

	"github.com/cuemby/skynet-control/pkg/events"
	"github.com/cuemby/skynet-control/pkg/gatewayclient"
	"github.com/cuemby/skynet-control/pkg/metrics"
	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/ratelimit"
	"github.com/cuemby/skynet-control/pkg/readmodel"
	"github.com/cuemby/skynet-control/pkg/registry"
)

// dispatchWriteTimeout is generous enough to cover a synchronous
// route-task call, which may block on a gateway action up to
// gatewayclient.ActionTimeout.
const dispatchWriteTimeout = gatewayclient.ActionTimeout + 20*time.Second

// Server is the HTTP API server. It holds no state of its own beyond
// wiring; every operation delegates to the queue, registry, gateway
// client, or read model it was built with.
type Server struct {
	queue         *queue.Queue
	registry      *registry.Registry
	gatewayClient *gatewayclient.Client
	readModel     *readmodel.ReadModel
	broker        *events.Broker
	limiter       *ratelimit.Limiter
	apiKey        string

	mux    *http.ServeMux
	server *http.Server
}

// Config carries the dependencies a Server is built from.
type Config struct {
	Queue         *queue.Queue
	Registry      *registry.Registry
	GatewayClient *gatewayclient.Client
	ReadModel     *readmodel.ReadModel
	Broker        *events.Broker
	Limiter       *ratelimit.Limiter
	APIKey        string
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		queue:         cfg.Queue,
		registry:      cfg.Registry,
		gatewayClient: cfg.GatewayClient,
		readModel:     cfg.ReadModel,
		broker:        cfg.Broker,
		limiter:       cfg.Limiter,
		apiKey:        cfg.APIKey,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /v1/health", metrics.HealthHandler())
	s.mux.Handle("GET /v1/health/ready", metrics.ReadyHandler())
	s.mux.Handle("GET /v1/health/live", metrics.LivenessHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.HandleFunc("POST /v1/register-gateway", s.protect(s.handleRegisterGateway))
	s.mux.HandleFunc("POST /v1/register-worker", s.protect(s.handleRegisterWorker))
	s.mux.HandleFunc("GET /v1/system-state", s.protect(s.handleSystemState))
	s.mux.HandleFunc("GET /v1/agents", s.protect(s.handleListAgents))

	s.mux.HandleFunc("POST /v1/route-task", s.protect(s.handleRouteTask))

	s.mux.HandleFunc("POST /v1/tasks/enqueue", s.protect(s.handleEnqueue))
	s.mux.HandleFunc("POST /v1/tasks/claim", s.protect(s.handleClaim))
	s.mux.HandleFunc("GET /v1/tasks/next", s.protect(s.handleNext))
	s.mux.HandleFunc("GET /v1/tasks", s.protect(s.handleListTasks))
	s.mux.HandleFunc("POST /v1/tasks/{id}/start", s.protect(s.handleStart))
	s.mux.HandleFunc("POST /v1/tasks/{id}/complete", s.protect(s.handleComplete))
	s.mux.HandleFunc("POST /v1/tasks/{id}/release", s.protect(s.handleRelease))

	s.mux.HandleFunc("GET /v1/file-ownership", s.protect(s.handleFileOwnership))
	s.mux.HandleFunc("POST /v1/file-ownership/claim", s.protect(s.handleFileOwnershipClaim))

	s.mux.HandleFunc("GET /v1/events", s.protect(s.handleEvents))
}

// Start serves the API on addr, blocking until the listener fails or
// Stop is called.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: dispatchWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	apiLog.Info().Str("addr", addr).Msg("api server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes the server immediately: the listener and every open
// connection, including in-flight requests and event streams, are closed
// without waiting for them to finish.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// Handler exposes the mux for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
