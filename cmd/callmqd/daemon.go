package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/oriys/callmq/examples/callables"
	"github.com/oriys/callmq/internal/config"
	"github.com/oriys/callmq/internal/coordination"
	"github.com/oriys/callmq/internal/coordstore/memstore"
	"github.com/oriys/callmq/internal/coordstore/redisstore"
	"github.com/oriys/callmq/internal/dispatcher"
	"github.com/oriys/callmq/internal/logging"
	"github.com/oriys/callmq/internal/metrics"
	"github.com/oriys/callmq/internal/queueprovider"
	"github.com/oriys/callmq/internal/queueprovider/inprocess"
	"github.com/oriys/callmq/internal/queueprovider/sqsqueue"
	"github.com/oriys/callmq/internal/retry"
	"github.com/oriys/callmq/internal/runtime"
	"github.com/oriys/callmq/internal/wire"
)

// workerCount mirrors asyncqueue.WorkerPool's default: a small fixed pool
// per queue, not one goroutine per message.
const workerCount = 8

func daemonCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the callmq consumer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Daemon.LogLevel)

			registry := wire.NewRegistry()
			registerExamples(registry)

			concurrency, debounce, rateLimit, err := buildCoordinationStores(cfg)
			if err != nil {
				return fmt.Errorf("build coordination stores: %w", err)
			}

			queue, consumable, err := buildQueueProvider(cfg)
			if err != nil {
				return fmt.Errorf("build queue provider: %w", err)
			}

			var dispatchMetrics *metrics.Dispatch
			var opts []dispatcher.Option
			if cfg.Observability.Metrics.Enabled {
				dispatchMetrics = metrics.NewDispatch(cfg.Observability.Metrics.Namespace)
				opts = append(opts, dispatcher.WithMetrics(dispatchMetrics))
			}

			runtime.Init(runtime.State{Registry: registry, Queue: queue, DebounceStore: debounce})

			d := dispatcher.New(registry, concurrency, debounce, rateLimit, queue, opts...)

			var retryMetrics retry.Metrics
			if dispatchMetrics != nil {
				retryMetrics = dispatchMetrics
			}
			shell := retry.New(d, queue, retryMetrics, retry.WithIntervals(cfg.Retry.IntervalsSeconds))

			var httpServer *http.Server
			if cfg.Daemon.HTTPAddr != "" && dispatchMetrics != nil {
				mux := http.NewServeMux()
				mux.Handle("/metrics", dispatchMetrics.Handler())
				mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					w.Write([]byte(`{"status":"ok","service":"callmqd"}`))
				})
				httpServer = &http.Server{Addr: cfg.Daemon.HTTPAddr, Handler: mux}
				go func() {
					logging.Op().Info("metrics/health endpoint started", "addr", cfg.Daemon.HTTPAddr)
					if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("http server error", "error", err)
					}
				}()
			}

			ctx, cancel := context.WithCancel(context.Background())
			var wg sync.WaitGroup
			if consumable != nil {
				startConsumers(ctx, &wg, consumable, cfg.Registry.Queues, shell)
			} else {
				logging.Op().Warn("queue backend has no in-process consume loop; consumption is driven externally (e.g. SQS behind a Lambda trigger)")
			}

			logging.Op().Info("callmqd started", "queues", cfg.Registry.Queues, "coordination_backend", cfg.Coordination.Backend, "queue_backend", cfg.Queue.Backend)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			cancel()
			if httpServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				httpServer.Shutdown(shutdownCtx)
				shutdownCancel()
			}
			wg.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

// registerExamples registers the reference callables used for local runs
// and demonstration; a real deployment registers its own callable types the
// same way at start-up, before any publish or consume begins.
func registerExamples(reg *wire.Registry) {
	reg.Register((&callables.Ping{}).TypeTag(), func() wire.Callable { return &callables.Ping{} })
	reg.Register((&callables.DbCb{}).TypeTag(), func() wire.Callable { return &callables.DbCb{} })
	reg.Register((&callables.RlCb{}).TypeTag(), func() wire.Callable { return &callables.RlCb{} })
	reg.Register((&callables.CcCb{}).TypeTag(), func() wire.Callable { return &callables.CcCb{} })
	reg.Register((&callables.RepCb{}).TypeTag(), func() wire.Callable { return &callables.RepCb{} })
	reg.Register((&callables.LgCb{}).TypeTag(), func() wire.Callable { return &callables.LgCb{} })
	reg.Register((&callables.DepCb{}).TypeTag(), func() wire.Callable { return &callables.DepCb{} })
}

func buildCoordinationStores(cfg *config.Config) (coordination.ConcurrencyStore, coordination.DebounceStore, coordination.RateLimitStore, error) {
	switch cfg.Coordination.Backend {
	case config.CoordinationRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Coordination.Redis.Addr,
			Password: cfg.Coordination.Redis.Password,
			DB:       cfg.Coordination.Redis.DB,
		})
		store := redisstore.New(client, redisstore.Config{})
		return store, store, store, nil
	default:
		store := memstore.New()
		return store, store, store, nil
	}
}

func buildQueueProvider(cfg *config.Config) (queueprovider.Provider, *inprocess.Provider, error) {
	switch cfg.Queue.Backend {
	case config.QueueSQS:
		sqsCfg := sqsqueue.Config{QueueURLs: cfg.Queue.SQS.QueueURLs, DLQURLs: cfg.Queue.SQS.DLQURLs}
		provider, err := sqsqueue.New(context.Background(), sqsCfg)
		if err != nil {
			return nil, nil, err
		}
		return provider, nil, nil
	default:
		var dlqNames []string
		for _, q := range cfg.Registry.Queues {
			dlqNames = append(dlqNames, q)
		}
		provider := inprocess.New(inprocess.Config{DeadLetterQueues: dlqNames})
		return provider, provider, nil
	}
}

// startConsumers launches workerCount goroutines per configured queue,
// mirroring asyncqueue.WorkerPool's fixed worker-count pattern
// (internal/asyncqueue/worker.go) generalized from a DB poll loop to a
// channel range.
func startConsumers(ctx context.Context, wg *sync.WaitGroup, provider *inprocess.Provider, queueNames []string, shell *retry.Shell) {
	for _, queueName := range queueNames {
		queueName := queueName
		items := provider.Consume(queueName)
		for i := 0; i < workerCount; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case item, ok := <-items:
						if !ok {
							return
						}
						if err := shell.Handle(ctx, item.Payload, queueName, item.Metadata); err != nil {
							logging.Op().Error("dispatch failed", "queue", queueName, "error", err)
						}
					}
				}
			}()
		}
	}
}
