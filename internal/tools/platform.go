package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/guestlytics/insight-go/internal/analytics"
)

// PlatformTool fetches live, authoritative stats for one advertising
// platform, bypassing the index. One instance is registered per connected
// platform.
type PlatformTool struct {
	platform string
	fetcher  analytics.PlatformFetcher
}

type platformInput struct {
	TenantID  string `json:"tenant_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// NewPlatformTool constructs a live-fetch tool for the given platform.
func NewPlatformTool(platform string, fetcher analytics.PlatformFetcher) *PlatformTool {
	return &PlatformTool{platform: platform, fetcher: fetcher}
}

// NewPlatformTools constructs one tool per entry in fetchers, in the order
// of analytics.KnownPlatforms so registration is deterministic.
func NewPlatformTools(fetchers analytics.PlatformFetchers) []*PlatformTool {
	out := make([]*PlatformTool, 0, len(fetchers))
	for _, platform := range analytics.KnownPlatforms {
		if fetcher, ok := fetchers[platform]; ok {
			out = append(out, NewPlatformTool(platform, fetcher))
		}
	}
	return out
}

// Name returns the tool name registered with the agent.
func (t *PlatformTool) Name() string { return "fetch_" + t.platform + "_stats" }

// Description returns the LLM-facing description of this tool.
func (t *PlatformTool) Description() string {
	return fmt.Sprintf("Fetches live %s statistics (impressions, clicks, spend, conversions, revenue) "+
		"directly from the platform for an exact date range. Use when the indexed data does not cover "+
		"the requested period or when the user asks for current numbers.", t.platform)
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *PlatformTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
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

// InvokableRun fetches the stats and returns them as JSON.
func (t *PlatformTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input platformInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("%s: invalid input: %w", t.Name(), err)
	}
	if input.TenantID == "" {
		return "", fmt.Errorf("%s: tenant_id is required", t.Name())
	}

	period, err := parseRange(input.StartDate, input.EndDate)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}

	stats, err := t.fetcher(ctx, input.TenantID, period)
	if err != nil {
		return "", fmt.Errorf("%s: fetch failed: %w", t.Name(), err)
	}

	out, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("%s: encode result: %w", t.Name(), err)
	}
	return string(out), nil
}
