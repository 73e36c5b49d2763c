// Package ingress implements the HTTP surface: submit, status, response,
// health, and metrics, all versioned under /api/v1.
package ingress

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/openhqm/openhqm/pkg/partition"
	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/openhqm/openhqm/pkg/statestore"
	"github.com/openhqm/openhqm/pkg/validator"
)

// Config controls ingress-owned behavior: which queue requests land on and
// how long state records live.
type Config struct {
	Host         string        `env:"HOST" env-default:"0.0.0.0"`
	Port         int           `env:"PORT" env-default:"8080"`
	Workers      int           `env:"WORKERS" env-default:"1"`
	RequestQueue string        `env:"-"`
	StateTTL     time.Duration `env:"-"`
	Version      string        `env:"-"`
}

// Server wires the queue, state store, and partition manager into the
// HTTP handlers.
type Server struct {
	Echo *echo.Echo

	cfg       Config
	queue     queue.Queue
	store     statestore.Store
	partition *partition.Manager
	validate  *validator.Validator
	startedAt time.Time
}

// NewServer builds an echo server with every /api/v1 route registered.
// partitionMgr may be nil when partitioning is disabled.
func NewServer(cfg Config, q queue.Queue, store statestore.Store, partitionMgr *partition.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("openhqm-ingress"))

	s := &Server{
		Echo:      e,
		cfg:       cfg,
		queue:     q,
		store:     store,
		partition: partitionMgr,
		validate:  validator.New(),
		startedAt: time.Now(),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.Echo.Group("/api/v1")
	api.POST("/submit", s.handleSubmit)
	api.GET("/status/:cid", s.handleStatus)
	api.GET("/response/:cid", s.handleResponse)
	api.GET("/health", s.handleHealth)
	api.GET("/metrics", s.handleMetrics)
}
