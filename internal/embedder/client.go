// Package embedder provides the embedding client used by both the sync
// worker (write path) and the retrieval orchestrator (read path). A Client
// wraps a backend (OpenAI or Ollama REST API) with batching, retry with
// exponential backoff on rate limits, inter-batch rate smoothing, and
// output dimensionality validation.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize caps the number of texts per API call to bound
	// request size.
	DefaultBatchSize = 100

	// defaultMaxRetries is the per-batch retry budget.
	defaultMaxRetries = 3

	// backoffBase is the first backoff interval on a rate-limited attempt;
	// each subsequent rate-limited attempt doubles it.
	backoffBase = 500 * time.Millisecond

	// flatRetryDelay is the fixed delay before retrying non-rate-limit
	// failures.
	flatRetryDelay = 250 * time.Millisecond

	// defaultBatchesPerSecond smooths the request rate between successive
	// batches so bulk sync runs do not hammer the embedding API.
	defaultBatchesPerSecond = 2
)

// Backend is the raw embedding API contract satisfied by the OpenAI and
// Ollama implementations. A failed call returns *APIError when an HTTP
// status is available, letting the Client classify the failure.
type Backend interface {
	// Embed converts texts into parallel embeddings in a single API call.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ClientConfig holds the settings for constructing a Client.
type ClientConfig struct {
	// Backend is the raw embedding API implementation. Required.
	Backend Backend

	// Dimensions is the expected embedding width. Every returned vector is
	// validated against it; 0 disables the check.
	Dimensions int

	// BatchSize caps texts per API call. Defaults to DefaultBatchSize.
	BatchSize int

	// MaxRetries is the per-batch retry budget. Defaults to 3.
	MaxRetries int

	// BatchesPerSecond is the sustained batch submission rate. Defaults
	// to 2.
	BatchesPerSecond float64

	// Logger receives retry warnings. Defaults to slog.Default.
	Logger *slog.Logger
}

// Client implements rag.Embedder with batching and retry discipline on top
// of a Backend. It is safe for concurrent use; the rate limiter is shared
// so concurrent callers jointly respect the smoothing budget.
type Client struct {
	backend    Backend
	dimensions int
	batchSize  int
	maxRetries int
	limiter    *rate.Limiter
	log        *slog.Logger

	// sleep is swapped out in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a Client from the given config.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil || cfg.Backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	bps := cfg.BatchesPerSecond
	if bps <= 0 {
		bps = defaultBatchesPerSecond
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		backend:    cfg.Backend,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		limiter:    rate.NewLimiter(rate.Limit(bps), 1),
		log:        log,
		sleep:      sleepCtx,
	}, nil
}

// Dimensions returns the expected embedding width (0 if unvalidated).
func (c *Client) Dimensions() int { return c.dimensions }

// Embed converts a single text into its embedding.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts texts into parallel embeddings, splitting the input
// into API calls of at most the configured batch size. Empty or
// whitespace-only inputs are rejected immediately without consuming the
// retry budget.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &Error{Op: "embed_batch", Err: fmt.Errorf("no texts provided")}
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &Error{Op: "embed_batch", Err: fmt.Errorf("text %d is empty or whitespace-only", i)}
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		// The shared token bucket spaces out successive batches.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Op: "embed_batch", Err: err}
		}

		batch, err := c.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// embedWithRetry runs one backend call with the retry budget. Rate-limited
// attempts back off exponentially (base·2^(attempt-1)); other failures
// retry after a flat short delay. A dimension or length mismatch on a
// successful response is a hard error and is never retried.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	rateLimited := false

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		vectors, err := c.backend.Embed(ctx, texts)
		if err == nil {
			if err := c.validate(texts, vectors); err != nil {
				return nil, &Error{Op: "embed_batch", Err: err}
			}
			return vectors, nil
		}

		lastErr = err
		rateLimited = isRateLimit(err)
		if attempt == c.maxRetries {
			break
		}

		delay := flatRetryDelay
		if rateLimited {
			delay = backoffBase << (attempt - 1)
		}
		c.log.Warn("embedder: attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Bool("rate_limited", rateLimited),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &Error{Op: "embed_batch", RateLimited: rateLimited, Err: err}
		}
	}

	return nil, &Error{Op: "embed_batch", RateLimited: rateLimited, Err: lastErr}
}

// validate checks the response array length and each vector's width.
func (c *Client) validate(texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	if c.dimensions <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != c.dimensions {
			return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), c.dimensions)
		}
	}
	return nil
}

// isRateLimit reports whether err carries an HTTP 429 status.
func isRateLimit(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
