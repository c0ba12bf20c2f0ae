// Package rag defines the data model and interfaces for the retrieval-
// augmented generation core: metric chunks, tenant-partitioned vector
// storage, and embedding. Concrete implementations (Qdrant, the OpenAI and
// Ollama embedders) satisfy these interfaces so the orchestrator and the
// sync worker never depend on a specific backend.
package rag

import (
	"context"
	"time"
)

// MetricType labels the analytics facet a chunk was derived from.
type MetricType string

const (
	// MetricOverview covers site-wide traffic figures for a period.
	MetricOverview MetricType = "overview"
	// MetricConversion covers bookings, revenue, and conversion rates.
	MetricConversion MetricType = "conversion"
	// MetricChannel covers a single acquisition channel breakdown.
	MetricChannel MetricType = "channel"
	// MetricPlatform covers a single connected advertising platform.
	MetricPlatform MetricType = "platform"
	// MetricInsight covers cross-cutting observations and comparisons.
	MetricInsight MetricType = "insight"
	// MetricCampaign covers individual campaign performance.
	MetricCampaign MetricType = "campaign"
)

// AllMetricTypes lists every facet in presentation order.
var AllMetricTypes = []MetricType{
	MetricOverview,
	MetricConversion,
	MetricChannel,
	MetricPlatform,
	MetricInsight,
	MetricCampaign,
}

// DateLayout is the calendar-date format used throughout chunk metadata.
const DateLayout = "2006-01-02"

// ChunkMetadata is the structured payload stored alongside every chunk.
// TenantID is the mandatory partition dimension — every store operation
// filters on it, and no query result may ever cross tenants.
type ChunkMetadata struct {
	// TenantID identifies the owning project. Never empty.
	TenantID string

	// MetricType labels the facet this chunk describes.
	MetricType MetricType

	// Platform is the advertising platform, set only for platform chunks.
	Platform string

	// StartDate and EndDate bound the calendar period (inclusive),
	// formatted with DateLayout.
	StartDate string
	EndDate   string

	// DateRangeLabel is the human-readable period name ("last week",
	// "February 2025", "last 30 days (fallback)").
	DateRangeLabel string

	// Category groups chunks for display ("traffic", "revenue", ...).
	Category string

	// SnapshotJSON is the serialized metrics payload the chunk text was
	// rendered from, keyed by MetricType so consumers can decode it.
	SnapshotJSON string

	// IsFallbackData marks chunks returned through the widened-window
	// retrieval fallback rather than the originally requested period.
	IsFallbackData bool

	// FallbackPeriod names the substituted window when IsFallbackData is set.
	FallbackPeriod string

	// CreatedAt is when the chunk was indexed; ExpiresAt is CreatedAt plus
	// the retention TTL. Expired chunks are eligible for DeleteOlderThan.
	CreatedAt time.Time
	ExpiresAt time.Time
}

// MetricChunk is the unit of embedding and retrieval: a bounded,
// self-describing text rendering of one metrics facet plus its metadata.
// Chunks are immutable once created; re-indexing a tenant deletes and
// reinserts rather than mutating in place.
type MetricChunk struct {
	// ID is an opaque unique identifier (UUID).
	ID string

	// Text is the human-readable rendering embedded and shown to the LLM.
	Text string

	// Metadata carries the structured fields used for filtering.
	Metadata ChunkMetadata
}

// ScoredChunk is a MetricChunk with the similarity score assigned during
// retrieval. Scores are normalized to [0, 1], higher is better.
type ScoredChunk struct {
	MetricChunk
	Score float32
}

// TimeRange is an inclusive timestamp window used for metadata filtering.
// A chunk matches when its own period overlaps the range.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// QueryFilters are the optional metadata filters ANDed onto the mandatory
// tenant filter of every query.
type QueryFilters struct {
	// TimeRange restricts results to chunks whose period overlaps it.
	TimeRange *TimeRange

	// MetricTypes restricts results to any of the given facets (OR).
	MetricTypes []MetricType

	// Platforms restricts results to any of the given platforms (OR).
	Platforms []string
}

// QueryParams parameterize a similarity search.
type QueryParams struct {
	// TenantID is the mandatory partition key. Queries with an empty
	// TenantID are rejected.
	TenantID string

	// TopK is the maximum number of results to return.
	TopK int

	// MinScore excludes results scoring below the threshold. This is the
	// tunable recall/precision knob; typical call sites use 0.60–0.70.
	MinScore float32

	// Filters are the optional metadata filters.
	Filters QueryFilters
}

// Embedder converts text into dense vector embeddings of a fixed
// dimensionality. Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed converts a single text into its embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts a batch of texts; the returned slice is parallel
	// to the input. Implementations enforce the batch size cap themselves.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the tenant-partitioned vector index contract.
// Implementations must be safe to call from multiple goroutines and must
// apply the tenant filter on every operation.
type VectorStore interface {
	// Upsert stores chunks with their pre-computed embeddings.
	// vectors must be parallel to chunks — vectors[i] belongs to chunks[i].
	// Upserting an existing chunk ID replaces the previous record.
	Upsert(ctx context.Context, tenantID string, chunks []MetricChunk, vectors [][]float32) error

	// Query performs a similarity search scoped to params.TenantID and
	// returns results ranked by descending score, already filtered by
	// params.MinScore.
	Query(ctx context.Context, vector []float32, params QueryParams) ([]ScoredChunk, error)

	// DeleteByTenant removes every chunk belonging to the tenant.
	// Used before re-indexing so stale data never accumulates.
	DeleteByTenant(ctx context.Context, tenantID string) error

	// DeleteOlderThan removes the tenant's chunks created before cutoff.
	// Used for TTL cleanup.
	DeleteOlderThan(ctx context.Context, tenantID string, cutoff time.Time) error

	// Count returns the number of chunks stored for the tenant.
	Count(ctx context.Context, tenantID string) (uint64, error)

	// HasRecentData reports whether the tenant has at least one chunk
	// created within the given duration. Implemented as a bounded probe,
	// never a full scan.
	HasRecentData(ctx context.Context, tenantID string, within time.Duration) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
