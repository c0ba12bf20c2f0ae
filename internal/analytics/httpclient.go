package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPMetricsClient implements MetricsProvider against the dashboard's
// internal aggregation API. It is safe for concurrent use.
type HTTPMetricsClient struct {
	// baseURL is the aggregation service base URL, without trailing slash.
	baseURL string
	// token is the optional bearer token for service-to-service auth.
	token string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// HTTPMetricsConfig holds the settings for constructing an HTTPMetricsClient.
type HTTPMetricsConfig struct {
	// BaseURL is the aggregation service base URL
	// (e.g. "http://metrics.internal:9000").
	BaseURL string
	// Token is the optional bearer token for service-to-service auth.
	Token string
	// Timeout bounds each request. Defaults to 30s if zero.
	Timeout time.Duration
}

// NewHTTPMetricsClient constructs an HTTPMetricsClient from the given config.
func NewHTTPMetricsClient(cfg *HTTPMetricsConfig) (*HTTPMetricsClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("analytics: metrics API base URL must not be empty")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPMetricsClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// apiError is the JSON error body the aggregation service returns on failure.
type apiError struct {
	Error string `json:"error"`
}

// ProjectMetrics fetches the aggregated snapshot for one tenant and period
// from GET /internal/metrics/{tenant}.
func (c *HTTPMetricsClient) ProjectMetrics(ctx context.Context, tenantID string, period DateRange) (*Snapshot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("analytics: tenant id must not be empty")
	}

	var snap Snapshot
	path := "/internal/metrics/" + url.PathEscape(tenantID)
	if err := c.get(ctx, path, period, &snap); err != nil {
		return nil, err
	}
	snap.TenantID = tenantID
	snap.Range = period
	return &snap, nil
}

// PlatformStats fetches live stats for one platform and period from
// GET /internal/platforms/{platform}/{tenant}.
func (c *HTTPMetricsClient) PlatformStats(ctx context.Context, platform, tenantID string, period DateRange) (*PlatformStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("analytics: tenant id must not be empty")
	}

	var stats PlatformStats
	path := "/internal/platforms/" + url.PathEscape(platform) + "/" + url.PathEscape(tenantID)
	if err := c.get(ctx, path, period, &stats); err != nil {
		return nil, err
	}
	stats.Platform = platform
	return &stats, nil
}

// Fetchers returns a PlatformFetcher per known platform, each backed by this
// client. The agent's live-data tools consume this map.
func (c *HTTPMetricsClient) Fetchers() PlatformFetchers {
	fetchers := make(PlatformFetchers, len(KnownPlatforms))
	for _, platform := range KnownPlatforms {
		fetchers[platform] = func(ctx context.Context, tenantID string, period DateRange) (*PlatformStats, error) {
			return c.PlatformStats(ctx, platform, tenantID, period)
		}
	}
	return fetchers
}

// get performs an authenticated GET with the period encoded as query
// parameters and decodes the JSON response into out.
func (c *HTTPMetricsClient) get(ctx context.Context, path string, period DateRange, out any) error {
	q := url.Values{}
	q.Set("start", period.StartDate())
	q.Set("end", period.EndDate())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("analytics: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body apiError
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("analytics: metrics API returned %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("analytics: metrics API returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("analytics: decode response: %w", err)
	}
	return nil
}
