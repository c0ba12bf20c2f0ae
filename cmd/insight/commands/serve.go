package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/guestlytics/insight-go/internal/agent"
	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/chunking"
	"github.com/guestlytics/insight-go/internal/indexer"
	"github.com/guestlytics/insight-go/internal/intent"
	"github.com/guestlytics/insight-go/internal/logging"
	"github.com/guestlytics/insight-go/internal/provider"
	"github.com/guestlytics/insight-go/internal/server"
	"github.com/guestlytics/insight-go/internal/tracing"
)

// NewServeCmd constructs the `insight serve` command, which starts the HTTP
// API server and the background metrics indexer.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the insight HTTP API server and background indexer",
		Long: `Start the insight HTTP server on localhost.

The server exposes POST /api/query for question answering, the sync control
endpoints, health/readiness probes, and Prometheus metrics. When the metrics
API and tenant catalog are configured, a background worker re-indexes every
project on a fixed interval (SYNC_INTERVAL_HOURS, default 24).

Examples:
  insight serve
  insight serve --port 9090
  MODEL_PROVIDER=azure insight serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			store, err := buildVectorStore(ctx, emb.Dimensions())
			if err != nil {
				return fmt.Errorf("serve: failed to connect to qdrant: %w", err)
			}
			defer store.Close()

			memories := buildMemoryStore(ctx, emb.Dimensions(), log)
			if memories != nil {
				defer memories.Close()
			}

			// The metrics API is optional for serving: without it the agent
			// answers from the index alone and background sync is disabled.
			metrics, err := buildMetricsClient()
			if err != nil {
				log.Warn("live metrics tools and background sync disabled", slog.Any("error", err))
				metrics = nil
			}

			parser := intent.NewParser()
			orchestrator := buildOrchestrator(emb, store, memories)
			agentTools := buildTools(orchestrator, parser, metrics)

			runtime, err := agent.New(ctx, &agent.Config{
				ChatModel:        chatModel,
				Tools:            agentTools,
				MaxContextTokens: envInt("AGENT_MAX_CONTEXT_TOKENS", 0),
				Observer:         buildObserver(emb, memories),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			// One registry backs both the indexer and the HTTP server so
			// GET /metrics exposes everything.
			reg := prometheus.NewRegistry()

			var worker *indexer.Worker
			if metrics != nil {
				catalogPath := os.Getenv("INSIGHT_CATALOG_DB")
				if catalogPath == "" {
					log.Warn("background sync disabled", slog.String("reason", "INSIGHT_CATALOG_DB not set"))
				} else {
					catalog, err := analytics.OpenCatalog(catalogPath)
					if err != nil {
						return fmt.Errorf("serve: failed to open tenant catalog: %w", err)
					}
					defer catalog.Close()

					worker = indexer.NewWorker(indexer.WorkerConfig{
						Catalog:  catalog,
						Provider: metrics,
						Engine:   chunking.NewEngine(),
						Embedder: emb,
						Store:    store,
						Registry: reg,
					})

					interval := time.Duration(envInt("SYNC_INTERVAL_HOURS", 24)) * time.Hour
					scheduler := indexer.NewScheduler(worker, interval, os.Getenv("SYNC_ON_START") == "true")
					scheduler.Start(ctx)
					defer scheduler.Stop()
					log.Info("sync scheduler started", slog.Duration("interval", interval))
				}
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(chatModel, providerCfg.HealthCheck(), string(providerCfg.Backend)),
				server.NewQdrantPinger(store.Client()),
			}

			var syncer server.SyncRunner
			if worker != nil {
				syncer = worker
			}

			srv, err := server.New(runtime, syncer, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				APIKey:          os.Getenv("INSIGHT_API_KEY"),
				MetricsRegistry: reg,
				MetricsGatherer: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
