// Package memory stores user corrections and preferences as an append-only
// self-learning log. Entries live in their own Qdrant collection, partitioned
// by user rather than by project, and are retrieved by similarity so a rule
// stated once ("always show revenue in euros") biases future answers about
// any project the user owns.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/guestlytics/insight-go/internal/intent"
)

// Payload field names in the user-memory collection. user_id is the
// partition dimension here, playing the role tenant_id plays for metric
// chunks.
const (
	fieldUserID    = "user_id"
	fieldProjectID = "project_id"
	fieldType      = "memory_type"
	fieldQuery     = "original_query"
	fieldContent   = "correction"
	fieldCreatedAt = "created_at"
)

// UserMemory is one remembered instruction. Memories are never updated or
// deleted; a newer contradicting instruction simply outranks the old one at
// retrieval time by similarity and recency.
type UserMemory struct {
	// ID is an opaque unique identifier.
	ID string

	// UserID is the owning user — the partition key.
	UserID string

	// ProjectID is the project the instruction was given in, if any.
	ProjectID string

	// Type classifies the instruction.
	Type intent.MemoryType

	// OriginalQuery is the message the instruction was detected in.
	OriginalQuery string

	// Correction is the instruction text to surface to the model.
	Correction string

	// CreatedAt is when the memory was recorded.
	CreatedAt time.Time
}

// ScoredMemory is a UserMemory with its retrieval similarity score.
type ScoredMemory struct {
	UserMemory
	Score float32
}

// StoreConfig holds connection parameters for the memory store.
type StoreConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection holding user memories.
	Collection string

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize uint64

	// APIKey is the optional Qdrant API key.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Store persists user memories in Qdrant.
type Store struct {
	client *qdrant.Client
	cfg    *StoreConfig
}

// NewStore creates a Store, ensuring the collection exists.
func NewStore(ctx context.Context, cfg *StoreConfig) (*Store, error) {
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
		return nil, fmt.Errorf("memory: failed to create qdrant client: %w", err)
	}

	s := &Store{client: client, cfg: cfg}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("memory: failed to check collection existence: %w", err)
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
		return fmt.Errorf("memory: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Record appends a new memory with its pre-computed embedding. The memory's
// ID and CreatedAt are assigned here if unset.
func (s *Store) Record(ctx context.Context, mem UserMemory, vector []float32) error {
	if mem.UserID == "" {
		return fmt.Errorf("memory: user id is required")
	}
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(mem.ID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				fieldUserID:    mem.UserID,
				fieldProjectID: mem.ProjectID,
				fieldType:      string(mem.Type),
				fieldQuery:     mem.OriginalQuery,
				fieldContent:   mem.Correction,
				fieldCreatedAt: mem.CreatedAt.UnixMilli(),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("memory: failed to record: %w", err)
	}

	return nil
}

// Search returns the user's memories most similar to the query vector,
// ranked by descending score and filtered by minScore. The user filter is
// mandatory; memories never cross users.
func (s *Store) Search(ctx context.Context, userID string, vector []float32, topK int, minScore float32) ([]ScoredMemory, error) {
	if userID == "" {
		return nil, fmt.Errorf("memory: user id is required")
	}

	limit := uint64(topK)
	if limit == 0 {
		limit = 3
	}

	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(fieldUserID, userID)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	}
	if minScore > 0 {
		threshold := minScore
		query.ScoreThreshold = &threshold
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to search: %w", err)
	}

	memories := make([]ScoredMemory, 0, len(results))
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		memories = append(memories, ScoredMemory{
			UserMemory: memoryFromPayload(r.Id.GetUuid(), r.Payload),
			Score:      r.Score,
		})
	}

	return memories, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func memoryFromPayload(id string, payload map[string]*qdrant.Value) UserMemory {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	var created time.Time
	if v, ok := payload[fieldCreatedAt]; ok {
		created = time.UnixMilli(v.GetIntegerValue())
	}

	return UserMemory{
		ID:            id,
		UserID:        get(fieldUserID),
		ProjectID:     get(fieldProjectID),
		Type:          intent.MemoryType(get(fieldType)),
		OriginalQuery: get(fieldQuery),
		Correction:    get(fieldContent),
		CreatedAt:     created,
	}
}
