package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/guestlytics/insight-go/internal/intent"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

type fakeRecorder struct {
	mems []UserMemory
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, mem UserMemory, _ []float32) error {
	if f.err != nil {
		return f.err
	}
	f.mems = append(f.mems, mem)
	return nil
}

func TestObserveIgnoresPlainQuestions(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	l := &Learner{embedder: &fakeEmbedder{vector: []float32{0.1}}, store: rec}

	recorded, err := l.Observe(context.Background(), "user-7", "hotel-a", "how did revenue do last month?")
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if recorded {
		t.Error("plain question was recorded as a memory")
	}
	if len(rec.mems) != 0 {
		t.Errorf("store received %d memories, want 0", len(rec.mems))
	}
}

func TestObserveRecordsCorrection(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	l := &Learner{embedder: &fakeEmbedder{vector: []float32{0.1, 0.2}}, store: rec}

	msg := "that's wrong, I meant direct bookings only"
	recorded, err := l.Observe(context.Background(), "user-7", "hotel-a", msg)
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if !recorded {
		t.Fatal("correction was not recorded")
	}

	if len(rec.mems) != 1 {
		t.Fatalf("store received %d memories, want 1", len(rec.mems))
	}
	mem := rec.mems[0]
	if mem.Type != intent.MemoryCorrection {
		t.Errorf("Type = %q, want %q", mem.Type, intent.MemoryCorrection)
	}
	if mem.UserID != "user-7" || mem.ProjectID != "hotel-a" {
		t.Errorf("identity = %s/%s, want user-7/hotel-a", mem.UserID, mem.ProjectID)
	}
	if mem.OriginalQuery != msg || mem.Correction != msg {
		t.Errorf("message not carried through: query=%q correction=%q", mem.OriginalQuery, mem.Correction)
	}
}

func TestObserveRecordsStandingRule(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	l := &Learner{embedder: &fakeEmbedder{vector: []float32{0.3}}, store: rec}

	recorded, err := l.Observe(context.Background(), "user-7", "", "always show revenue in euros")
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if !recorded {
		t.Fatal("standing rule was not recorded")
	}
	if got := rec.mems[0].Type; got != intent.MemoryInstruction {
		t.Errorf("Type = %q, want %q", got, intent.MemoryInstruction)
	}
}

func TestObserveSkipsAnonymousUsers(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	l := &Learner{embedder: &fakeEmbedder{vector: []float32{0.1}}, store: rec}

	recorded, err := l.Observe(context.Background(), "", "hotel-a", "that's wrong")
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if recorded || len(rec.mems) != 0 {
		t.Error("anonymous instruction was recorded")
	}
}

func TestObserveSurfacesEmbedError(t *testing.T) {
	t.Parallel()

	l := &Learner{
		embedder: &fakeEmbedder{err: errors.New("embedding backend down")},
		store:    &fakeRecorder{},
	}

	_, err := l.Observe(context.Background(), "user-7", "hotel-a", "that's wrong")
	if err == nil {
		t.Fatal("Observe() error = nil, want embed failure")
	}
}
