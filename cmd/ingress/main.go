// Command ingress runs the HTTP submission/status/response API: it accepts
// requests, hands them to the queue, and lets workers (cmd/worker) do the
// actual processing.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openhqm/openhqm/internal/bootstrap"
	"github.com/openhqm/openhqm/pkg/config"
	"github.com/openhqm/openhqm/pkg/ingress"
	"github.com/openhqm/openhqm/pkg/logger"
	"github.com/openhqm/openhqm/pkg/partition"
	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/openhqm/openhqm/pkg/statestore"
)

type serverConfig struct {
	Host    string `env:"HOST" env-default:"0.0.0.0"`
	Port    int    `env:"PORT" env-default:"8080"`
	Workers int    `env:"WORKERS" env-default:"1"`
}

type workerTimeoutConfig struct {
	TimeoutSeconds int `env:"TIMEOUT_SECONDS" env-default:"30"`
}

type appConfig struct {
	Server       serverConfig              `env-prefix:"OPENHQM_SERVER__"`
	Queue        queue.Config              `env-prefix:"OPENHQM_QUEUE__"`
	Cache        statestore.Config         `env-prefix:"OPENHQM_CACHE__"`
	Routing      bootstrap.RoutingConfig   `env-prefix:"OPENHQM_ROUTING__"`
	Partitioning partition.Config          `env-prefix:"OPENHQM_PARTITIONING__"`
	WorkerRef    workerTimeoutConfig       `env-prefix:"OPENHQM_WORKER__"`
	Log          logger.Config
	Version      string `env:"OPENHQM_VERSION" env-default:"dev"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "ingress: failed to load configuration:", err)
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

	var partitionMgr *partition.Manager
	if cfg.Partitioning.Enabled {
		owned := partition.OwnedPartitions(cfg.Partitioning.PartitionCount, 0, 1)
		partitionMgr = partition.NewManager(cfg.Partitioning, "ingress", owned)
	}

	ttl := bootstrap.RequestTTL(cfg.Cache.TTLSeconds, cfg.WorkerRef.TimeoutSeconds)

	server := ingress.NewServer(ingress.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Workers:      cfg.Server.Workers,
		RequestQueue: cfg.Queue.RequestQueue,
		StateTTL:     ttl,
		Version:      cfg.Version,
	}, q, store, partitionMgr)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Echo,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("ingress listening", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server exited with error", "error", err)
			return 2
		}
	case <-sigCtx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	if err := q.Disconnect(shutdownCtx); err != nil {
		log.Error("queue disconnect failed", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Error("state store close failed", "error", err)
	}

	return 0
}
