package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/tool"

	"github.com/guestlytics/insight-go/internal/agent"
	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/embedder"
	"github.com/guestlytics/insight-go/internal/intent"
	"github.com/guestlytics/insight-go/internal/memory"
	"github.com/guestlytics/insight-go/internal/rag"
	"github.com/guestlytics/insight-go/internal/retrieval"
	"github.com/guestlytics/insight-go/internal/tools"
)

// Default Qdrant collection names, overridable via env.
const (
	defaultChunkCollection  = "insight-metrics"
	defaultMemoryCollection = "insight-memories"
)

// buildEmbedder constructs the embedding client from EMBEDDING_* env vars.
func buildEmbedder(log *slog.Logger) (*embedder.Client, error) {
	return embedder.New(embedder.Settings{
		Provider:   os.Getenv("EMBEDDING_PROVIDER"),
		Model:      os.Getenv("EMBEDDING_MODEL"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		Dimensions: envInt("EMBEDDING_DIMENSIONS", 0),
	}, log)
}

// buildVectorStore connects to Qdrant and ensures the metric chunk
// collection exists with the embedder's vector size.
func buildVectorStore(ctx context.Context, dims int) (*rag.QdrantStore, error) {
	return rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       envInt("QDRANT_PORT", 0),
		Collection: envOrDefault("QDRANT_COLLECTION", defaultChunkCollection),
		VectorSize: uint64(dims),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
}

// buildMemoryStore connects to the user-memory collection. Memory is an
// optional feature; callers treat a nil return as "disabled".
func buildMemoryStore(ctx context.Context, dims int, log *slog.Logger) *memory.Store {
	store, err := memory.NewStore(ctx, &memory.StoreConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       envInt("QDRANT_PORT", 0),
		Collection: envOrDefault("QDRANT_MEMORY_COLLECTION", defaultMemoryCollection),
		VectorSize: uint64(dims),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		log.Warn("user memory disabled: store unavailable", slog.Any("error", err))
		return nil
	}
	return store
}

// buildMetricsClient constructs the aggregation-API client from METRICS_API_*
// env vars. Returns an error when METRICS_API_URL is unset so callers can
// decide whether the feature is required.
func buildMetricsClient() (*analytics.HTTPMetricsClient, error) {
	baseURL := os.Getenv("METRICS_API_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("METRICS_API_URL is not set")
	}
	return analytics.NewHTTPMetricsClient(&analytics.HTTPMetricsConfig{
		BaseURL: baseURL,
		Token:   os.Getenv("METRICS_API_TOKEN"),
	})
}

// buildOrchestrator assembles the retrieval read path. memories may be nil.
func buildOrchestrator(emb *embedder.Client, store *rag.QdrantStore, memories *memory.Store) *retrieval.Orchestrator {
	var searcher retrieval.MemorySearcher
	if memories != nil {
		searcher = memories
	}
	return retrieval.NewOrchestrator(intent.NewParser(), emb, store, searcher)
}

// buildObserver wires instruction capture into the agent when the memory
// store is available. memories may be nil.
func buildObserver(emb *embedder.Client, memories *memory.Store) agent.MessageObserver {
	if memories == nil {
		return nil
	}
	return memory.NewLearner(emb, memories)
}

// buildTools constructs the tool list for the agent runtime. The live-data
// tools are omitted gracefully when the metrics API is not configured.
func buildTools(orchestrator *retrieval.Orchestrator, parser *intent.Parser, metrics *analytics.HTTPMetricsClient) []tool.InvokableTool {
	toolList := []tool.InvokableTool{
		tools.NewMetricsSearchTool(orchestrator),
		tools.NewTimeRangeTool(parser),
	}

	if metrics != nil {
		toolList = append(toolList, tools.NewProjectMetricsTool(metrics))
		for _, pt := range tools.NewPlatformTools(metrics.Fetchers()) {
			toolList = append(toolList, pt)
		}
	}

	return toolList
}

// envOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
