package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/chunking"
	"github.com/guestlytics/insight-go/internal/indexer"
	"github.com/guestlytics/insight-go/internal/logging"
)

// NewSyncCmd constructs the `insight sync` command, which runs one full
// indexing cycle and exits.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one metrics indexing cycle and exit",
		Long: `Re-index every sync-eligible project once.

For each project with at least one connected ad platform, the command fetches
the rolling reporting windows from the metrics API, renders them into text
chunks, embeds them, and replaces the project's vectors in Qdrant.

Requires METRICS_API_URL and INSIGHT_CATALOG_DB.

Examples:
  insight sync
  INSIGHT_CATALOG_DB=/var/lib/insight/catalog.db insight sync`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			metrics, err := buildMetricsClient()
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			catalogPath := os.Getenv("INSIGHT_CATALOG_DB")
			if catalogPath == "" {
				return fmt.Errorf("sync: INSIGHT_CATALOG_DB is not set")
			}
			catalog, err := analytics.OpenCatalog(catalogPath)
			if err != nil {
				return fmt.Errorf("sync: failed to open tenant catalog: %w", err)
			}
			defer catalog.Close()

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("sync: failed to initialise embedder: %w", err)
			}

			store, err := buildVectorStore(ctx, emb.Dimensions())
			if err != nil {
				return fmt.Errorf("sync: failed to connect to qdrant: %w", err)
			}
			defer store.Close()

			worker := indexer.NewWorker(indexer.WorkerConfig{
				Catalog:  catalog,
				Provider: metrics,
				Engine:   chunking.NewEngine(),
				Embedder: emb,
				Store:    store,
			})

			if err := worker.RunSync(ctx); err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			out, _ := json.MarshalIndent(worker.Status(), "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	return cmd
}
