// Package retrieval is the read path of the metrics index: it parses a
// question into structured intent, embeds it, runs the filtered similarity
// search (with a widened-window fallback when the requested period has no
// data), pulls in any matching user memories, and composes the grounded
// context string handed to the language model.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/intent"
	"github.com/guestlytics/insight-go/internal/logging"
	"github.com/guestlytics/insight-go/internal/memory"
	"github.com/guestlytics/insight-go/internal/rag"
)

// Retrieval defaults. The fallback pass trades precision for recall: a wider
// window and a lower score threshold, so a question about a period with no
// indexed data still gets grounded in whatever recent data exists.
const (
	DefaultTopK     = 6
	DefaultMinScore = 0.65

	fallbackWindowDays = 30
	fallbackMinScore   = 0.50

	memoryTopK     = 3
	memoryMinScore = 0.70
)

// MemorySearcher is the slice of the memory store the orchestrator needs.
type MemorySearcher interface {
	Search(ctx context.Context, userID string, vector []float32, topK int, minScore float32) ([]memory.ScoredMemory, error)
}

// Options tune one retrieval call. Zero values select the defaults.
type Options struct {
	// TopK caps the number of chunks retrieved.
	TopK int

	// MinScore is the similarity threshold for the primary pass.
	MinScore float32

	// IncludeUserMemory enables the best-effort user-memory lookup.
	IncludeUserMemory bool

	// DateRange overrides the parsed window when the query names none.
	DateRange *analytics.DateRange
}

// Stats describes one retrieval for logging and the metadata footer.
type Stats struct {
	// EmbedDuration is how long the query embedding took.
	EmbedDuration time.Duration

	// ChunkCount is the number of chunks in the final result.
	ChunkCount int

	// AverageScore is the mean similarity of the returned chunks.
	AverageScore float32

	// UsedFallback reports whether the widened-window pass supplied the
	// results.
	UsedFallback bool
}

// Result is the full outcome of one retrieval.
type Result struct {
	// Context is the composed grounding text for the language model.
	Context string

	// Chunks are the retrieved metric chunks, ranked by score.
	Chunks []rag.ScoredChunk

	// Memories are the user's matching remembered instructions.
	Memories []memory.ScoredMemory

	// Intent is the structured reading of the query, with the timeframe
	// relabelled if the fallback pass was used.
	Intent intent.ParsedIntent

	// Stats describes the retrieval.
	Stats Stats
}

// Orchestrator wires the parser, embedder, vector store, and memory store
// into the read path.
type Orchestrator struct {
	parser   *intent.Parser
	embedder rag.Embedder
	store    rag.VectorStore
	memories MemorySearcher
	now      func() time.Time
}

// NewOrchestrator builds the read path. memories may be nil when user-memory
// retrieval is disabled product-wide.
func NewOrchestrator(parser *intent.Parser, embedder rag.Embedder, store rag.VectorStore, memories MemorySearcher) *Orchestrator {
	return &Orchestrator{
		parser:   parser,
		embedder: embedder,
		store:    store,
		memories: memories,
		now:      time.Now,
	}
}

// RetrieveContext runs the full read path for one question. Embedding and
// vector-store failures propagate; memory failures are logged and treated as
// zero results.
func (o *Orchestrator) RetrieveContext(ctx context.Context, query, tenantID, userID string, opts Options) (*Result, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("retrieval: tenant id is required")
	}

	log := logging.FromContext(ctx)

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	now := o.now()
	parsed := o.parser.Parse(query, now, opts.DateRange)

	embedStart := time.Now()
	vector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	embedDuration := time.Since(embedStart)

	chunks, err := o.store.Query(ctx, vector, rag.QueryParams{
		TenantID: tenantID,
		TopK:     topK,
		MinScore: minScore,
		Filters: rag.QueryFilters{
			TimeRange:   parsed.Timeframe.Range(),
			MetricTypes: parsed.MetricTypes,
			Platforms:   parsed.Platforms,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: query store: %w", err)
	}

	usedFallback := false
	if len(chunks) == 0 {
		chunks, err = o.fallbackQuery(ctx, vector, tenantID, topK, now)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			usedFallback = true
			parsed.Timeframe = fallbackTimeframe(now)
			for i := range chunks {
				chunks[i].Metadata.IsFallbackData = true
				chunks[i].Metadata.FallbackPeriod = parsed.Timeframe.Label
			}
			log.Info("retrieval fell back to trailing window",
				slog.String("tenant", tenantID),
				slog.Int("chunks", len(chunks)))
		}
	}

	var memories []memory.ScoredMemory
	if opts.IncludeUserMemory && o.memories != nil && userID != "" {
		memories, err = o.memories.Search(ctx, userID, vector, memoryTopK, memoryMinScore)
		if err != nil {
			// Memory is best-effort; a failure here must not block the answer.
			log.Warn("user memory lookup failed", slog.String("user", userID), slog.Any("error", err))
			memories = nil
		}
	}

	stats := Stats{
		EmbedDuration: embedDuration,
		ChunkCount:    len(chunks),
		AverageScore:  averageScore(chunks),
		UsedFallback:  usedFallback,
	}

	return &Result{
		Context:  composeContext(parsed, chunks, memories, stats),
		Chunks:   chunks,
		Memories: memories,
		Intent:   parsed,
		Stats:    stats,
	}, nil
}

// fallbackQuery widens the search to a 30-day trailing window with a lowered
// threshold and no platform/metric filters.
func (o *Orchestrator) fallbackQuery(ctx context.Context, vector []float32, tenantID string, topK int, now time.Time) ([]rag.ScoredChunk, error) {
	tr := &rag.TimeRange{From: now.AddDate(0, 0, -fallbackWindowDays), To: now}
	chunks, err := o.store.Query(ctx, vector, rag.QueryParams{
		TenantID: tenantID,
		TopK:     topK,
		MinScore: fallbackMinScore,
		Filters:  rag.QueryFilters{TimeRange: tr},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: fallback query: %w", err)
	}
	return chunks, nil
}

// fallbackTimeframe builds the substituted window so downstream consumers can
// disclose it to the user.
func fallbackTimeframe(now time.Time) intent.Timeframe {
	end := now.AddDate(0, 0, -1)
	start := now.AddDate(0, 0, -fallbackWindowDays)
	return intent.Timeframe{
		StartTime:    time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()).UnixMilli(),
		EndTime:      time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999_000_000, end.Location()).UnixMilli(),
		StartDate:    start.Format(rag.DateLayout),
		EndDate:      end.Format(rag.DateLayout),
		Label:        fmt.Sprintf("last %d days (fallback)", fallbackWindowDays),
		IsHistorical: true,
	}
}

func averageScore(chunks []rag.ScoredChunk) float32 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float32
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float32(len(chunks))
}

// composeContext renders the grounding text: remembered user rules first,
// then a data-availability header, the chunks with their relevance, and a
// metadata footer. An empty result produces an explicit no-data notice so
// the model does not invent numbers.
func composeContext(parsed intent.ParsedIntent, chunks []rag.ScoredChunk, memories []memory.ScoredMemory, stats Stats) string {
	var b strings.Builder

	if len(memories) > 0 {
		b.WriteString("## User-defined rules\n")
		b.WriteString("The user has previously given these instructions; follow them:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s\n", m.Correction)
		}
		b.WriteString("\n")
	}

	if len(chunks) == 0 {
		fmt.Fprintf(&b, "## Data availability\nNo indexed analytics data is available for %s (%s to %s), and none was found in the trailing window either. Say so plainly and do not invent or estimate any numbers.\n",
			parsed.Timeframe.Label, parsed.Timeframe.StartDate, parsed.Timeframe.EndDate)
		return b.String()
	}

	fmt.Fprintf(&b, "## Data availability\nIndexed analytics data for %s (%s to %s).",
		parsed.Timeframe.Label, parsed.Timeframe.StartDate, parsed.Timeframe.EndDate)
	if stats.UsedFallback {
		b.WriteString(" The requested period had no data; the figures below come from a recent substitute window — disclose this to the user.")
	}
	if len(parsed.Platforms) > 0 {
		fmt.Fprintf(&b, " Focused platforms: %s.", strings.Join(parsed.Platforms, ", "))
	}
	b.WriteString("\n\n## Analytics data\n")

	platforms := map[string]bool{}
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] (relevance %.0f%%) %s\n", i+1, c.Score*100, c.Text)
		if c.Metadata.Platform != "" {
			platforms[c.Metadata.Platform] = true
		}
	}

	fmt.Fprintf(&b, "\n## Retrieval metadata\n%d chunks, average relevance %.0f%%",
		stats.ChunkCount, stats.AverageScore*100)
	if len(platforms) > 0 {
		names := make([]string, 0, len(platforms))
		for p := range platforms {
			names = append(names, p)
		}
		// Map order varies; sorted output keeps the context stable for
		// identical inputs.
		sort.Strings(names)
		fmt.Fprintf(&b, ", platforms represented: %s", strings.Join(names, ", "))
	}
	b.WriteString("\n")

	return b.String()
}
