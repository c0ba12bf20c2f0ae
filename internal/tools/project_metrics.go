package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/guestlytics/insight-go/internal/analytics"
)

// ProjectMetricsTool returns the full aggregated metrics snapshot for an
// exact date range, computed live rather than read from the index.
type ProjectMetricsTool struct {
	provider analytics.MetricsProvider
}

type projectMetricsInput struct {
	TenantID  string `json:"tenant_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// NewProjectMetricsTool constructs the tool over the aggregation provider.
func NewProjectMetricsTool(provider analytics.MetricsProvider) *ProjectMetricsTool {
	return &ProjectMetricsTool{provider: provider}
}

// Name returns the tool name registered with the agent.
func (t *ProjectMetricsTool) Name() string { return "get_project_metrics" }

// Description returns the LLM-facing description of this tool.
func (t *ProjectMetricsTool) Description() string {
	return "Computes the full aggregated analytics snapshot (traffic, bookings, revenue, channels, " +
		"ad platforms, campaigns) for an exact date range. Slower than search_metrics but exact; " +
		"use for precise period comparisons the index does not cover."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *ProjectMetricsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			ArgTenantID: {
				Type: schema.String,
				Desc: "Project identifier. Leave empty to use the current project.",
			},
			ArgStartDate: {
				Type:     schema.String,
				Desc:     "First day of the period, YYYY-MM-DD.",
				Required: true,
			},
			ArgEndDate: {
				Type:     schema.String,
				Desc:     "Last day of the period, YYYY-MM-DD.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun computes the snapshot and returns it as JSON.
func (t *ProjectMetricsTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input projectMetricsInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("get_project_metrics: invalid input: %w", err)
	}
	if input.TenantID == "" {
		return "", fmt.Errorf("get_project_metrics: tenant_id is required")
	}

	period, err := parseRange(input.StartDate, input.EndDate)
	if err != nil {
		return "", fmt.Errorf("get_project_metrics: %w", err)
	}

	snap, err := t.provider.ProjectMetrics(ctx, input.TenantID, period)
	if err != nil {
		return "", fmt.Errorf("get_project_metrics: aggregation failed: %w", err)
	}
	if !snap.HasSignal() {
		return fmt.Sprintf("No analytics data recorded for %s.", period.Label), nil
	}

	out, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("get_project_metrics: encode result: %w", err)
	}
	return string(out), nil
}
