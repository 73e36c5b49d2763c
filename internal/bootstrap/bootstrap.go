// Package bootstrap holds the wiring both cmd/ingress and cmd/worker share:
// routing document loading, state store selection, and the request TTL
// formula, so neither main package duplicates it.
package bootstrap

import (
	"os"
	"time"

	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/openhqm/openhqm/pkg/routing"
	"github.com/openhqm/openhqm/pkg/statestore"
	memstore "github.com/openhqm/openhqm/pkg/statestore/adapters/memory"
	redisstore "github.com/openhqm/openhqm/pkg/statestore/adapters/redis"

	// Side-effect imports: every queue driver registers itself under its
	// name via init(), so cmd/* only needs to name a driver, not import it.
	_ "github.com/openhqm/openhqm/pkg/queue/adapters/eventhubs"
	_ "github.com/openhqm/openhqm/pkg/queue/adapters/kafka"
	_ "github.com/openhqm/openhqm/pkg/queue/adapters/memory"
	_ "github.com/openhqm/openhqm/pkg/queue/adapters/mqtt"
	_ "github.com/openhqm/openhqm/pkg/queue/adapters/pubsub"
	_ "github.com/openhqm/openhqm/pkg/queue/adapters/redisstreams"
	_ "github.com/openhqm/openhqm/pkg/queue/adapters/sqs"
)

// RoutingConfig controls whether/how the routing document is loaded.
// ConfigPath takes a file on disk; ConfigDict is an inline YAML/JSON
// document, for deployments that prefer a single env var over a mounted
// file. ConfigPath wins when both are set.
type RoutingConfig struct {
	Enabled    bool   `env:"ENABLED" env-default:"true"`
	ConfigPath string `env:"CONFIG_PATH"`
	ConfigDict string `env:"CONFIG_DICT"`
}

// LoadRoutingEngine builds a routing.Engine from cfg, or returns (nil, nil,
// nil) when routing is disabled or no document is configured: the processor
// then relies solely on PROXY__DEFAULT_ENDPOINT.
func LoadRoutingEngine(cfg RoutingConfig) (*routing.Engine, map[string]routing.Endpoint, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	var data []byte
	switch {
	case cfg.ConfigPath != "":
		b, err := os.ReadFile(cfg.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		data = b
	case cfg.ConfigDict != "":
		data = []byte(cfg.ConfigDict)
	default:
		return nil, nil, nil
	}

	doc, err := routing.LoadConfig(data)
	if err != nil {
		return nil, nil, err
	}

	engine, err := routing.NewEngine(*doc)
	if err != nil {
		return nil, nil, err
	}
	return engine, doc.Endpoints, nil
}

// NewStateStore selects the memory or Redis backend by cfg.Driver, then
// wraps it in the resilient (circuit breaker/retry) and instrumented
// (logging/tracing) decorators, so every cmd/* caller gets both without
// repeating the wiring.
func NewStateStore(cfg statestore.Config) (statestore.Store, error) {
	var store statestore.Store
	if cfg.Driver == "redis" {
		s, err := redisstore.New(cfg)
		if err != nil {
			return nil, err
		}
		store = s
	} else {
		store = memstore.New()
	}

	store = statestore.NewResilientStore(store, cfg.Resilient)
	store = statestore.NewInstrumentedStore(store)
	return store, nil
}

// NewQueue constructs the driver named by cfg.Type and wraps it in the
// resilient (circuit breaker/retry) and instrumented (logging/tracing)
// decorators, mirroring NewStateStore.
func NewQueue(cfg queue.Config) (queue.Queue, error) {
	q, err := queue.New(cfg.Type, queue.DriverConfigFromEnv(cfg.Type))
	if err != nil {
		return nil, err
	}

	var wrapped queue.Queue = queue.NewResilientQueue(q, cfg.Resilient)
	wrapped = queue.NewInstrumentedQueue(wrapped)
	return wrapped, nil
}

// RequestTTL implements the decision in SPEC_FULL.md §5: the state record
// must outlive the worker's own processing timeout, so the floor is
// workerTimeoutSeconds+60 regardless of a shorter configured cache TTL.
func RequestTTL(cacheTTLSeconds, workerTimeoutSeconds int) time.Duration {
	floor := workerTimeoutSeconds + 60
	ttl := cacheTTLSeconds
	if ttl < floor {
		ttl = floor
	}
	return time.Duration(ttl) * time.Second
}
