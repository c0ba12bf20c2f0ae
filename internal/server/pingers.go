package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/guestlytics/insight-go/internal/provider"
)

// LLMPinger probes an LLM backend for readiness. It satisfies the Pinger
// interface and is used by GET /api/ready.
type LLMPinger struct {
	// model is the chat model to probe when no cheap HTTP check exists.
	model model.ToolCallingChatModel
	// healthCheck describes a zero-token HTTP probe for the backend.
	// Preferred over a Generate call, which consumes tokens.
	healthCheck provider.HealthCheckConfig
	// client performs the HTTP probe.
	client *http.Client
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
// hc may be the zero value; the pinger then falls back to a one-token
// Generate call.
func NewLLMPinger(m model.ToolCallingChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, client: http.DefaultClient, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend. When a zero-cost HTTP health check is
// configured it is used exclusively; otherwise it falls back to a minimal
// Generate call.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck.URL != "" {
		return p.pingHTTP(ctx)
	}

	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// pingHTTP performs the cheap HTTP probe described by the backend's
// HealthCheckConfig.
func (p *LLMPinger) pingHTTP(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthCheck.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	if p.healthCheck.Header != "" {
		req.Header.Set(p.healthCheck.Header, p.healthCheck.HeaderValue)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s health check returned %d", p.name, resp.StatusCode)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
