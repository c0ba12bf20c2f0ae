// Package indexer is the write path of the metrics index: a scheduled ETL
// that walks every sync-eligible tenant, aggregates metrics over a fixed set
// of rolling windows, renders them into chunks, embeds, and upserts into the
// vector store. Runs never overlap — a request while a run is in progress is
// skipped, and the next scheduled tick is the retry.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/chunking"
	"github.com/guestlytics/insight-go/internal/logging"
	"github.com/guestlytics/insight-go/internal/rag"
)

const (
	// tenantBatchSize bounds how many tenants are processed concurrently.
	tenantBatchSize = 5

	// interBatchDelay spaces tenant batches to respect upstream API limits.
	interBatchDelay = 2 * time.Second

	// freshnessWindow skips tenants whose index was refreshed recently.
	// Shorter than the daily schedule so a late-running tick still syncs.
	freshnessWindow = 20 * time.Hour

	// priorWeeks is how many full past weeks get their own window.
	priorWeeks = 4
)

// ErrSyncRunning is returned when a run is requested while one is already in
// progress.
var ErrSyncRunning = errors.New("indexer: sync already running")

// WorkerConfig wires the worker's collaborators.
type WorkerConfig struct {
	// Catalog selects sync-eligible tenants.
	Catalog analytics.TenantCatalog

	// Provider aggregates per-tenant metrics snapshots.
	Provider analytics.MetricsProvider

	// Engine renders snapshots into chunks.
	Engine *chunking.Engine

	// Embedder converts chunk text into vectors.
	Embedder rag.Embedder

	// Store receives the embedded chunks.
	Store rag.VectorStore

	// Registry receives the worker's Prometheus metrics.
	Registry prometheus.Registerer
}

// Worker runs the sync ETL. Safe for concurrent use: overlapping run
// requests are collapsed by the skip-if-busy guard.
type Worker struct {
	catalog  analytics.TenantCatalog
	provider analytics.MetricsProvider
	engine   *chunking.Engine
	embedder rag.Embedder
	store    rag.VectorStore
	metrics  *workerMetrics
	tracker  statusTracker

	now        func() time.Time
	batchDelay time.Duration
}

// NewWorker constructs a Worker. Registry may be nil when metrics are not
// wanted (tests).
func NewWorker(cfg WorkerConfig) *Worker {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Worker{
		catalog:    cfg.Catalog,
		provider:   cfg.Provider,
		engine:     cfg.Engine,
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		metrics:    newWorkerMetrics(reg),
		now:        time.Now,
		batchDelay: interBatchDelay,
	}
}

// Status returns a copy of the current sync status.
func (w *Worker) Status() SyncStatus {
	return w.tracker.snapshot()
}

// RunSync executes one full sync pass. It returns ErrSyncRunning when a pass
// is already in progress. Per-tenant and per-window failures are logged and
// skipped; only catalog-level failures abort the run.
func (w *Worker) RunSync(ctx context.Context) error {
	start := w.now()
	if !w.tracker.begin(start) {
		w.metrics.runsTotal.WithLabelValues("skipped").Inc()
		logging.FromContext(ctx).Info("sync run skipped, previous run still in progress")
		return ErrSyncRunning
	}

	tenants, vectors, err := w.run(ctx)
	w.tracker.finish(w.now(), tenants, vectors, err)

	w.metrics.runDurationSeconds.Observe(time.Since(start).Seconds())
	w.metrics.tenantsProcessedTotal.Add(float64(tenants))
	w.metrics.vectorsUpsertedTotal.Add(float64(vectors))
	if err != nil {
		w.metrics.runsTotal.WithLabelValues("error").Inc()
		return err
	}
	w.metrics.runsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (w *Worker) run(ctx context.Context) (tenantsProcessed, vectorsUpserted int, err error) {
	log := logging.FromContext(ctx)

	tenants, err := w.catalog.ListSyncEligible(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("indexer: list tenants: %w", err)
	}
	log.Info("sync run started", slog.Int("tenants", len(tenants)))

	var processed, upserted atomic.Int64
	for batchStart := 0; batchStart < len(tenants); batchStart += tenantBatchSize {
		if batchStart > 0 {
			select {
			case <-ctx.Done():
				return int(processed.Load()), int(upserted.Load()), ctx.Err()
			case <-time.After(w.batchDelay):
			}
		}

		end := batchStart + tenantBatchSize
		if end > len(tenants) {
			end = len(tenants)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, tenant := range tenants[batchStart:end] {
			tenant := tenant
			g.Go(func() error {
				n, tenantErr := w.syncTenant(gctx, tenant)
				upserted.Add(int64(n))
				if tenantErr != nil {
					// One tenant failing must not abort the batch.
					log.Error("tenant sync failed",
						slog.String("tenant", tenant.ID),
						slog.Any("error", tenantErr))
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(processed.Load()), int(upserted.Load()), err
		}
	}

	log.Info("sync run finished",
		slog.Int("tenants_processed", int(processed.Load())),
		slog.Int("vectors_upserted", int(upserted.Load())))
	return int(processed.Load()), int(upserted.Load()), nil
}

// syncTenant rebuilds one tenant's index: freshness probe, delete, then
// fetch-chunk-embed-upsert over every rolling window. Window failures are
// logged and skipped so one bad period cannot lose the rest.
func (w *Worker) syncTenant(ctx context.Context, tenant analytics.Tenant) (int, error) {
	log := logging.FromContext(ctx).With(slog.String("tenant", tenant.ID))

	fresh, err := w.store.HasRecentData(ctx, tenant.ID, freshnessWindow)
	if err != nil {
		return 0, fmt.Errorf("freshness probe: %w", err)
	}
	if fresh {
		log.Debug("tenant index is fresh, skipping")
		return 0, nil
	}

	if err := w.store.DeleteByTenant(ctx, tenant.ID); err != nil {
		return 0, fmt.Errorf("clear previous index: %w", err)
	}

	upserted := 0
	for _, window := range rollingWindows(w.now()) {
		n, err := w.syncWindow(ctx, tenant, window)
		if err != nil {
			w.metrics.windowFailuresTotal.Inc()
			log.Warn("window sync failed",
				slog.String("window", window.Label),
				slog.Any("error", err))
			continue
		}
		upserted += n
	}

	log.Info("tenant synced", slog.Int("vectors", upserted))
	return upserted, nil
}

func (w *Worker) syncWindow(ctx context.Context, tenant analytics.Tenant, window analytics.DateRange) (int, error) {
	snap, err := w.provider.ProjectMetrics(ctx, tenant.ID, window)
	if err != nil {
		return 0, fmt.Errorf("fetch metrics: %w", err)
	}
	if !snap.HasSignal() {
		return 0, nil
	}

	chunks := w.engine.Chunk(snap, tenant.ID, window)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	if err := w.store.Upsert(ctx, tenant.ID, chunks, vectors); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}
	return len(chunks), nil
}

// rollingWindows enumerates the periods each sync run indexes: the current
// week, the four full weeks before it, the previous calendar month, and the
// two months before that. The month windows keep "last month" and "N months
// ago" questions answerable without a re-sync.
func rollingWindows(now time.Time) []analytics.DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	wd := int(today.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := today.AddDate(0, 0, -(wd - 1))

	windows := []analytics.DateRange{
		{Start: monday, End: today, Label: "this week"},
	}
	for i := 1; i <= priorWeeks; i++ {
		start := monday.AddDate(0, 0, -7*i)
		label := fmt.Sprintf("%d weeks ago", i)
		if i == 1 {
			label = "last week"
		}
		windows = append(windows, analytics.DateRange{
			Start: start,
			End:   start.AddDate(0, 0, 6),
			Label: label,
		})
	}

	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 1; i <= 3; i++ {
		start := firstOfMonth.AddDate(0, -i, 0)
		label := start.Format("January 2006")
		if i == 1 {
			label = "last month"
		}
		windows = append(windows, analytics.DateRange{
			Start: start,
			End:   start.AddDate(0, 1, -1),
			Label: label,
		})
	}

	return windows
}
