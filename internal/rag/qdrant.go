package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Payload field names used in the Qdrant collection. start_ts/end_ts are the
// millisecond timestamps backing the numeric range filters; the calendar
// dates are stored alongside for display.
const (
	fieldTenantID       = "tenant_id"
	fieldMetricType     = "metric_type"
	fieldPlatform       = "platform"
	fieldStartDate      = "start_date"
	fieldEndDate        = "end_date"
	fieldStartTS        = "start_ts"
	fieldEndTS          = "end_ts"
	fieldDateRangeLabel = "date_range_label"
	fieldCategory       = "category"
	fieldContent        = "content"
	fieldSnapshot       = "snapshot"
	fieldIsFallback     = "is_fallback"
	fieldFallbackPeriod = "fallback_period"
	fieldCreatedAt      = "created_at"
	fieldExpiresAt      = "expires_at"
)

// QdrantConfig holds connection parameters for the Qdrant-backed store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection holding metric chunks.
	Collection string

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection.
// Tenant partitioning is logical: every record carries a tenant_id payload
// field and every operation filters on it.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// Client exposes the underlying Qdrant client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("rag: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("rag: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores chunks with their pre-computed embeddings. Re-upserting an
// existing chunk ID replaces the previous point.
func (s *QdrantStore) Upsert(ctx context.Context, tenantID string, chunks []MetricChunk, vectors [][]float32) error {
	if tenantID == "" {
		return storeErr("upsert", fmt.Errorf("tenant id is required"))
	}
	if len(chunks) != len(vectors) {
		return storeErr("upsert", fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors)))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk.Metadata.TenantID != tenantID {
			return storeErr("upsert", fmt.Errorf("chunk %s carries tenant %q, expected %q",
				chunk.ID, chunk.Metadata.TenantID, tenantID))
		}
		if s.cfg.VectorSize > 0 && uint64(len(vectors[i])) != s.cfg.VectorSize {
			return storeErr("upsert", fmt.Errorf("chunk %s vector has %d dimensions, collection expects %d",
				chunk.ID, len(vectors[i]), s.cfg.VectorSize))
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(chunkPayload(chunk)),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return storeErr("upsert", err)
	}

	return nil
}

// Query performs a cosine similarity search scoped to params.TenantID.
// Results below params.MinScore are excluded before returning.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, params QueryParams) ([]ScoredChunk, error) {
	if params.TenantID == "" {
		return nil, storeErr("query", fmt.Errorf("tenant id is required"))
	}

	limit := uint64(params.TopK)
	if limit == 0 {
		limit = 10
	}

	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildQueryFilter(params.TenantID, params.Filters),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if params.MinScore > 0 {
		threshold := params.MinScore
		query.ScoreThreshold = &threshold
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, storeErr("query", err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		// The server already applies ScoreThreshold; the re-check keeps the
		// contract independent of backend behaviour.
		if r.Score < params.MinScore {
			continue
		}
		chunk := chunkFromPayload(r.Id.GetUuid(), r.Payload)
		chunks = append(chunks, ScoredChunk{MetricChunk: chunk, Score: r.Score})
	}

	return chunks, nil
}

// DeleteByTenant removes every point belonging to the tenant.
func (s *QdrantStore) DeleteByTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return storeErr("delete", fmt.Errorf("tenant id is required"))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(fieldTenantID, tenantID)},
		}),
	})
	if err != nil {
		return storeErr("delete", err)
	}

	return nil
}

// DeleteOlderThan removes the tenant's points created before cutoff.
func (s *QdrantStore) DeleteOlderThan(ctx context.Context, tenantID string, cutoff time.Time) error {
	if tenantID == "" {
		return storeErr("delete", fmt.Errorf("tenant id is required"))
	}

	lt := float64(cutoff.UnixMilli())
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(fieldTenantID, tenantID),
				qdrant.NewRange(fieldCreatedAt, &qdrant.Range{Lt: &lt}),
			},
		}),
	})
	if err != nil {
		return storeErr("delete", err)
	}

	return nil
}

// Count returns the exact number of points stored for the tenant.
func (s *QdrantStore) Count(ctx context.Context, tenantID string) (uint64, error) {
	if tenantID == "" {
		return 0, storeErr("count", fmt.Errorf("tenant id is required"))
	}

	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(fieldTenantID, tenantID)},
		},
		Exact: &exact,
	})
	if err != nil {
		return 0, storeErr("count", err)
	}

	return count, nil
}

// HasRecentData probes for a single point created within the given duration.
// A limit-1 scroll keeps the freshness check cheap regardless of how many
// chunks the tenant holds.
func (s *QdrantStore) HasRecentData(ctx context.Context, tenantID string, within time.Duration) (bool, error) {
	if tenantID == "" {
		return false, storeErr("scroll", fmt.Errorf("tenant id is required"))
	}

	gte := float64(time.Now().Add(-within).UnixMilli())
	limit := uint32(1)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(fieldTenantID, tenantID),
				qdrant.NewRange(fieldCreatedAt, &qdrant.Range{Gte: &gte}),
			},
		},
		Limit: &limit,
	})
	if err != nil {
		return false, storeErr("scroll", err)
	}

	return len(points) > 0, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// chunkPayload flattens a chunk into the Qdrant payload map.
func chunkPayload(chunk MetricChunk) map[string]any {
	m := chunk.Metadata
	startTS, endTS := periodTimestamps(m)
	return map[string]any{
		fieldTenantID:       m.TenantID,
		fieldMetricType:     string(m.MetricType),
		fieldPlatform:       m.Platform,
		fieldStartDate:      m.StartDate,
		fieldEndDate:        m.EndDate,
		fieldStartTS:        startTS,
		fieldEndTS:          endTS,
		fieldDateRangeLabel: m.DateRangeLabel,
		fieldCategory:       m.Category,
		fieldContent:        chunk.Text,
		fieldSnapshot:       m.SnapshotJSON,
		fieldIsFallback:     m.IsFallbackData,
		fieldFallbackPeriod: m.FallbackPeriod,
		fieldCreatedAt:      m.CreatedAt.UnixMilli(),
		fieldExpiresAt:      m.ExpiresAt.UnixMilli(),
	}
}

// periodTimestamps derives the millisecond range filter values from the
// chunk's calendar dates: start of StartDate through end of EndDate.
func periodTimestamps(m ChunkMetadata) (int64, int64) {
	start, err := time.ParseInLocation(DateLayout, m.StartDate, time.Local)
	if err != nil {
		return 0, 0
	}
	end, err := time.ParseInLocation(DateLayout, m.EndDate, time.Local)
	if err != nil {
		return start.UnixMilli(), start.UnixMilli()
	}
	endOfDay := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999_000_000, end.Location())
	return start.UnixMilli(), endOfDay.UnixMilli()
}

// chunkFromPayload reconstructs a MetricChunk from a Qdrant payload map.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) MetricChunk {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(key string) int64 {
		if v, ok := payload[key]; ok {
			return v.GetIntegerValue()
		}
		return 0
	}
	getBool := func(key string) bool {
		if v, ok := payload[key]; ok {
			return v.GetBoolValue()
		}
		return false
	}

	return MetricChunk{
		ID:   id,
		Text: get(fieldContent),
		Metadata: ChunkMetadata{
			TenantID:       get(fieldTenantID),
			MetricType:     MetricType(get(fieldMetricType)),
			Platform:       get(fieldPlatform),
			StartDate:      get(fieldStartDate),
			EndDate:        get(fieldEndDate),
			DateRangeLabel: get(fieldDateRangeLabel),
			Category:       get(fieldCategory),
			SnapshotJSON:   get(fieldSnapshot),
			IsFallbackData: getBool(fieldIsFallback),
			FallbackPeriod: get(fieldFallbackPeriod),
			CreatedAt:      time.UnixMilli(getInt(fieldCreatedAt)),
			ExpiresAt:      time.UnixMilli(getInt(fieldExpiresAt)),
		},
	}
}

// buildQueryFilter assembles the boolean filter for a query: the mandatory
// tenant equality condition plus any optional filters, all ANDed. The time
// filter matches chunks whose period overlaps the requested range
// (chunk start ≤ range end AND chunk end ≥ range start).
func buildQueryFilter(tenantID string, filters QueryFilters) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch(fieldTenantID, tenantID)}

	if tr := filters.TimeRange; tr != nil {
		lte := float64(tr.To.UnixMilli())
		gte := float64(tr.From.UnixMilli())
		must = append(must,
			qdrant.NewRange(fieldStartTS, &qdrant.Range{Lte: &lte}),
			qdrant.NewRange(fieldEndTS, &qdrant.Range{Gte: &gte}),
		)
	}

	if len(filters.MetricTypes) > 0 {
		keywords := make([]string, 0, len(filters.MetricTypes))
		for _, mt := range filters.MetricTypes {
			keywords = append(keywords, string(mt))
		}
		must = append(must, qdrant.NewMatchKeywords(fieldMetricType, keywords...))
	}

	if len(filters.Platforms) > 0 {
		must = append(must, qdrant.NewMatchKeywords(fieldPlatform, filters.Platforms...))
	}

	return &qdrant.Filter{Must: must}
}
