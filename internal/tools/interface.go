// Package tools defines the analytics tools the agent can invoke during a
// conversation: indexed-metrics search, live platform fetches, aggregated
// project metrics, and time-window resolution. Each tool satisfies Eino's
// tool.InvokableTool contract so it can be bound directly to the chat model.
package tools

import (
	"fmt"
	"time"

	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/rag"
)

// InsightTool extends the Eino tool contract with accessors the runtime uses
// for logging and routing without type assertions.
type InsightTool interface {
	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns the LLM-facing description of what the tool does.
	Description() string
}

// Context-injection argument names. The runtime fills these into a tool
// call's arguments when the model omits them, so every tool reads the same
// keys.
const (
	ArgTenantID  = "tenant_id"
	ArgUserID    = "user_id"
	ArgStartDate = "start_date"
	ArgEndDate   = "end_date"
)

// parseRange converts start/end calendar dates into a DateRange. Both dates
// are required; tools surface the error to the model rather than guessing.
func parseRange(startDate, endDate string) (analytics.DateRange, error) {
	start, err := time.ParseInLocation(rag.DateLayout, startDate, time.Local)
	if err != nil {
		return analytics.DateRange{}, fmt.Errorf("invalid start_date %q, expected YYYY-MM-DD", startDate)
	}
	end, err := time.ParseInLocation(rag.DateLayout, endDate, time.Local)
	if err != nil {
		return analytics.DateRange{}, fmt.Errorf("invalid end_date %q, expected YYYY-MM-DD", endDate)
	}
	if end.Before(start) {
		return analytics.DateRange{}, fmt.Errorf("end_date %s is before start_date %s", endDate, startDate)
	}
	return analytics.DateRange{
		Start: start,
		End:   end,
		Label: startDate + " to " + endDate,
	}, nil
}
