package memory

import (
	"context"
	"fmt"

	"github.com/guestlytics/insight-go/internal/intent"
	"github.com/guestlytics/insight-go/internal/rag"
)

// recorder decouples the learner from the concrete store.
type recorder interface {
	Record(ctx context.Context, mem UserMemory, vector []float32) error
}

// Learner watches incoming user messages for durable instructions and turns
// the ones it finds into stored memories. Plain questions are ignored; only
// corrections, preferences, and standing rules are persisted.
type Learner struct {
	embedder rag.Embedder
	store    recorder
}

// NewLearner constructs a Learner writing to the given store.
func NewLearner(embedder rag.Embedder, store *Store) *Learner {
	return &Learner{embedder: embedder, store: store}
}

// Observe classifies the message and, when it carries a memory-worthy
// instruction, embeds and records it. Returns whether a memory was stored.
// Messages without a user ID are skipped: anonymous instructions have no
// partition to live in.
func (l *Learner) Observe(ctx context.Context, userID, projectID, message string) (bool, error) {
	if userID == "" || message == "" {
		return false, nil
	}

	kind, ok := intent.DetectUserCorrection(message)
	if !ok {
		return false, nil
	}

	vector, err := l.embedder.Embed(ctx, message)
	if err != nil {
		return false, fmt.Errorf("memory: failed to embed instruction: %w", err)
	}

	mem := UserMemory{
		UserID:        userID,
		ProjectID:     projectID,
		Type:          kind,
		OriginalQuery: message,
		Correction:    message,
	}
	if err := l.store.Record(ctx, mem, vector); err != nil {
		return false, err
	}

	return true, nil
}
