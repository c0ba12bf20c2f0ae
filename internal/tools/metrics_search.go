package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/guestlytics/insight-go/internal/retrieval"
)

// MetricsSearchTool searches the indexed metrics by meaning. It is the
// agent's primary grounding tool; live-fetch tools exist for figures the
// index does not hold.
type MetricsSearchTool struct {
	orchestrator *retrieval.Orchestrator
}

type metricsSearchInput struct {
	// Query is the natural-language question to ground.
	Query string `json:"query"`

	// TenantID and UserID are injected by the runtime when omitted.
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
}

// NewMetricsSearchTool constructs the tool over the retrieval read path.
func NewMetricsSearchTool(orchestrator *retrieval.Orchestrator) *MetricsSearchTool {
	return &MetricsSearchTool{orchestrator: orchestrator}
}

// Name returns the tool name registered with the agent.
func (t *MetricsSearchTool) Name() string { return "search_metrics" }

// Description returns the LLM-facing description of this tool.
func (t *MetricsSearchTool) Description() string {
	return "Searches the hotel's indexed analytics data by meaning and returns formatted metric summaries " +
		"with their time periods. Use this first for any question about past traffic, bookings, revenue, " +
		"channels, or advertising performance."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *MetricsSearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The question to search indexed analytics for, in natural language.",
				Required: true,
			},
			ArgTenantID: {
				Type: schema.String,
				Desc: "Project identifier. Leave empty to use the current project.",
			},
			ArgUserID: {
				Type: schema.String,
				Desc: "User identifier. Leave empty to use the current user.",
			},
		}),
	}, nil
}

// InvokableRun executes the search and returns the composed context string.
func (t *MetricsSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input metricsSearchInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("search_metrics: invalid input: %w", err)
	}
	if input.Query == "" {
		return "", fmt.Errorf("search_metrics: query is required")
	}
	if input.TenantID == "" {
		return "", fmt.Errorf("search_metrics: tenant_id is required")
	}

	res, err := t.orchestrator.RetrieveContext(ctx, input.Query, input.TenantID, input.UserID,
		retrieval.Options{IncludeUserMemory: input.UserID != ""})
	if err != nil {
		return "", fmt.Errorf("search_metrics: %w", err)
	}

	return res.Context, nil
}
