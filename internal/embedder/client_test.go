package embedder

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

// fakeBackend scripts a sequence of responses: each call pops the next
// entry. A nil vectors entry with a non-nil err simulates a failure.
type fakeBackend struct {
	calls     int
	batchLens []int
	script    []fakeResult
	dims      int
}

type fakeResult struct {
	err error
}

func (f *fakeBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.batchLens = append(f.batchLens, len(texts))

	if len(f.script) > 0 {
		next := f.script[0]
		f.script = f.script[1:]
		if next.err != nil {
			return nil, next.err
		}
	}

	dims := f.dims
	if dims == 0 {
		dims = 4
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, dims)
		vectors[i][0] = float32(i + 1)
	}
	return vectors, nil
}

func newTestClient(t *testing.T, backend Backend, dims int) *Client {
	t.Helper()
	client, err := NewClient(&ClientConfig{
		Backend:          backend,
		Dimensions:       dims,
		BatchesPerSecond: 1000,
		Logger:           slog.Default(),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	client.sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	client := newTestClient(t, backend, 4)

	cases := []string{"", "   ", "\n\t"}
	for _, text := range cases {
		if _, err := client.Embed(context.Background(), text); err == nil {
			t.Errorf("Embed(%q) expected error, got nil", text)
		}
	}

	if backend.calls != 0 {
		t.Errorf("backend called %d times for empty input, want 0 (no retry)", backend.calls)
	}
}

func TestEmbedBatchSplitsIntoCappedBatches(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	client := newTestClient(t, backend, 4)
	client.batchSize = 10

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "chunk text"
	}

	vectors, err := client.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 25 {
		t.Errorf("EmbedBatch() returned %d vectors, want 25", len(vectors))
	}

	wantLens := []int{10, 10, 5}
	if len(backend.batchLens) != len(wantLens) {
		t.Fatalf("backend saw %d batches %v, want %v", len(backend.batchLens), backend.batchLens, wantLens)
	}
	for i, want := range wantLens {
		if backend.batchLens[i] != want {
			t.Errorf("batch %d size = %d, want %d", i, backend.batchLens[i], want)
		}
	}
}

func TestEmbedRetriesRateLimitThenSucceeds(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{script: []fakeResult{
		{err: &APIError{StatusCode: 429, Message: "rate limited"}},
		{err: &APIError{StatusCode: 429, Message: "rate limited"}},
	}}
	client := newTestClient(t, backend, 4)

	if _, err := client.Embed(context.Background(), "revenue last month"); err != nil {
		t.Fatalf("Embed() error = %v, want success after retries", err)
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3 (two rate-limited attempts + success)", backend.calls)
	}
}

func TestEmbedExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{script: []fakeResult{
		{err: &APIError{StatusCode: 429}},
		{err: &APIError{StatusCode: 429}},
		{err: &APIError{StatusCode: 429}},
		{err: &APIError{StatusCode: 429}},
	}}
	client := newTestClient(t, backend, 4)

	_, err := client.Embed(context.Background(), "some query")
	if err == nil {
		t.Fatal("Embed() expected error after exhausted retries, got nil")
	}

	var embErr *Error
	if !errors.As(err, &embErr) {
		t.Fatalf("Embed() error type = %T, want *embedder.Error", err)
	}
	if !embErr.RateLimited {
		t.Error("Error.RateLimited = false, want true for 429 responses")
	}
	if backend.calls != 3 {
		t.Errorf("backend calls = %d, want 3 (retry budget)", backend.calls)
	}
}

func TestEmbedDimensionMismatchIsTerminal(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{dims: 8}
	client := newTestClient(t, backend, 4)

	_, err := client.Embed(context.Background(), "some query")
	if err == nil {
		t.Fatal("Embed() expected dimension mismatch error, got nil")
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1 (dimension mismatch must not retry)", backend.calls)
	}
}

func TestEmbedNonRateLimitErrorsRetryFlat(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{script: []fakeResult{
		{err: &APIError{StatusCode: 500, Message: "upstream error"}},
	}}
	client := newTestClient(t, backend, 4)

	if _, err := client.Embed(context.Background(), "bookings this week"); err != nil {
		t.Fatalf("Embed() error = %v, want success after flat retry", err)
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls)
	}
}
