package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/guestlytics/insight-go/internal/intent"
)

// TimeRangeTool resolves natural-language period phrasing ("last month",
// "Q3", "two weeks ago") into exact calendar dates the other tools accept.
type TimeRangeTool struct {
	parser *intent.Parser
	now    func() time.Time
}

type timeRangeInput struct {
	// Phrase is the period description to resolve.
	Phrase string `json:"phrase"`
}

type timeRangeOutput struct {
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Label        string `json:"label"`
	IsHistorical bool   `json:"is_historical"`
}

// NewTimeRangeTool constructs the tool over the intent parser.
func NewTimeRangeTool(parser *intent.Parser) *TimeRangeTool {
	return &TimeRangeTool{parser: parser, now: time.Now}
}

// Name returns the tool name registered with the agent.
func (t *TimeRangeTool) Name() string { return "resolve_time_range" }

// Description returns the LLM-facing description of this tool.
func (t *TimeRangeTool) Description() string {
	return "Resolves a natural-language period like 'last month', 'Q3', or 'two weeks ago' into exact " +
		"start and end dates. Use this before calling tools that require start_date/end_date."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *TimeRangeTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"phrase": {
				Type:     schema.String,
				Desc:     "The period description to resolve, e.g. 'last month' or 'Q3'.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun resolves the phrase and returns the calendar bounds as JSON.
func (t *TimeRangeTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input timeRangeInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("resolve_time_range: invalid input: %w", err)
	}
	if input.Phrase == "" {
		return "", fmt.Errorf("resolve_time_range: phrase is required")
	}

	parsed := t.parser.Parse(input.Phrase, t.now(), nil)
	out, err := json.Marshal(timeRangeOutput{
		StartDate:    parsed.Timeframe.StartDate,
		EndDate:      parsed.Timeframe.EndDate,
		Label:        parsed.Timeframe.Label,
		IsHistorical: parsed.Timeframe.IsHistorical,
	})
	if err != nil {
		return "", fmt.Errorf("resolve_time_range: encode result: %w", err)
	}
	return string(out), nil
}
