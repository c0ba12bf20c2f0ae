package embedder

import "fmt"

// Error is the terminal embedding failure returned to callers once the
// retry budget is exhausted (or immediately, for non-retryable failures
// such as empty input or a dimension mismatch).
type Error struct {
	// Op names the failing operation ("embed", "embed_batch").
	Op string

	// RateLimited records whether the final underlying failure was an API
	// rate limit. Callers use this to distinguish capacity problems from
	// configuration problems.
	RateLimited bool

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("embedder: %s failed after retries (rate limited): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("embedder: %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// APIError carries the HTTP status of a failed embedding API call so the
// retry layer can decide between exponential backoff (rate limits) and a
// flat retry delay (everything else).
type APIError struct {
	// StatusCode is the HTTP status returned by the embedding API.
	StatusCode int

	// Message is the error text extracted from the response body, if any.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// RateLimited reports whether this response indicates API rate limiting.
func (e *APIError) RateLimited() bool { return e.StatusCode == 429 }
