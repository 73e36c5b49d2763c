// Command worker runs one or more consume loops that pull request messages
// off the queue, drive them through the processor, and record the outcome
// for cmd/ingress's status/response endpoints to read back.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openhqm/openhqm/internal/bootstrap"
	"github.com/openhqm/openhqm/pkg/client/rest"
	"github.com/openhqm/openhqm/pkg/config"
	"github.com/openhqm/openhqm/pkg/logger"
	"github.com/openhqm/openhqm/pkg/partition"
	"github.com/openhqm/openhqm/pkg/processor"
	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/openhqm/openhqm/pkg/statestore"
	"github.com/openhqm/openhqm/pkg/worker"
)

// workerExtra holds the one processor-owned flag spec.md keys under
// WORKER__ rather than PROXY__: development_mode gates the sample
// processor fallback, but it's the worker's deployment mode, not a proxy
// setting, so it's read from OPENHQM_WORKER__ and copied onto
// processor.Config below.
type workerExtra struct {
	DevelopmentMode bool `env:"DEVELOPMENT_MODE" env-default:"false"`
}

type appConfig struct {
	Queue        queue.Config            `env-prefix:"OPENHQM_QUEUE__"`
	Cache        statestore.Config       `env-prefix:"OPENHQM_CACHE__"`
	Routing      bootstrap.RoutingConfig `env-prefix:"OPENHQM_ROUTING__"`
	Partitioning partition.Config        `env-prefix:"OPENHQM_PARTITIONING__"`
	Proxy        processor.Config        `env-prefix:"OPENHQM_PROXY__"`
	Worker       worker.Config           `env-prefix:"OPENHQM_WORKER__"`
	WorkerExtra  workerExtra             `env-prefix:"OPENHQM_WORKER__"`
	Client       rest.Config             `env-prefix:"OPENHQM_"`
	Log          logger.Config
}

func main() {
	os.Exit(run())
}

func run() int {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "worker: failed to load configuration:", err)
		return 1
	}

	logger.Init(cfg.Log)
	log := logger.L()

	q, err := bootstrap.NewQueue(cfg.Queue)
	if err != nil {
		log.Error("failed to construct queue driver", "driver", cfg.Queue.Type, "error", err)
		return 1
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startCancel()
	if err := q.Connect(startCtx); err != nil {
		log.Error("failed to connect to queue", "error", err)
		return 1
	}

	store, err := bootstrap.NewStateStore(cfg.Cache)
	if err != nil {
		log.Error("failed to construct state store", "error", err)
		return 1
	}

	engine, endpoints, err := bootstrap.LoadRoutingEngine(cfg.Routing)
	if err != nil {
		log.Error("failed to load routing document", "error", err)
		return 1
	}

	httpClient := rest.New(cfg.Client)
	ttl := bootstrap.RequestTTL(cfg.Cache.TTLSeconds, cfg.Worker.TimeoutSeconds)
	cfg.Proxy.DevelopmentMode = cfg.WorkerExtra.DevelopmentMode

	count := cfg.Worker.Count
	if count < 1 {
		count = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var failed atomic.Bool

	for i := 0; i < count; i++ {
		var partitionMgr *partition.Manager
		if cfg.Partitioning.Enabled {
			owned := partition.OwnedPartitions(cfg.Partitioning.PartitionCount, i, count)
			partitionMgr = partition.NewManager(cfg.Partitioning, fmt.Sprintf("%s-%d", cfg.Queue.ConsumerGroup, i), owned)
		}

		proc := processor.New(cfg.Proxy, engine, partitionMgr, endpoints, httpClient)
		w := worker.New(fmt.Sprintf("%s-%d", cfg.Queue.ConsumerGroup, i), cfg.Worker, q, store, proc, ttl)

		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			if err := w.Start(ctx, cfg.Queue.RequestQueue, cfg.Queue.ResponseQueue, cfg.Queue.DLQQueue); err != nil {
				log.Error("worker exited with error", "error", err)
				failed.Store(true)
				cancel()
			}
		}(w)
	}

	wg.Wait()

	if failed.Load() {
		return 2
	}
	return 0
}
