// Package agent drives the bounded tool-calling loop between the chat model
// and the analytics tools. The loop is hand-driven rather than delegated to
// a framework agent so the iteration cap, per-tool error capture, and
// call-context injection stay under this package's control: every run
// terminates with a non-empty answer, and a single failing tool is returned
// to the model as data instead of aborting the exchange.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/guestlytics/insight-go/internal/budget"
	"github.com/guestlytics/insight-go/internal/logging"
	"github.com/guestlytics/insight-go/internal/tools"
)

// maxIterations caps model round-trips per run. Exhausting it yields the
// fixed fallback answer, never an empty response.
const maxIterations = 5

// fallbackAnswer is returned when the loop exhausts its iteration budget
// without the model producing a tool-call-free response.
const fallbackAnswer = "I'm sorry — I wasn't able to finish answering that question. " +
	"Please try rephrasing it or narrowing it to a specific time period or platform."

// systemPrompt establishes the assistant's persona and its rules for using
// the analytics tools.
const systemPrompt = `You are the Guestlytics Insight assistant, an analytics expert for independent
hotels. You answer questions about website traffic, direct bookings, revenue,
acquisition channels, and advertising performance across Google Ads, Meta Ads,
Microsoft Ads, TripAdvisor, and Trivago.

Rules you always follow:
- Ground every number in tool results. Use search_metrics first; it returns
  indexed summaries with their time periods. Use the live fetch_* tools or
  get_project_metrics when the index does not cover the requested period.
- Use resolve_time_range to turn period phrasing into exact dates before
  calling tools that need start_date/end_date.
- Never invent or estimate figures. If no data is available, say so plainly.
- When data comes from a substitute period (the tools tell you), disclose
  that to the user.
- State the time period alongside every figure, and the currency alongside
  every monetary amount.
- Be concise: a short direct answer first, supporting numbers after.`

// Config holds the dependencies required to construct a Runtime.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Tools are the analytics tools available to the model.
	Tools []tool.InvokableTool

	// SystemPrompt overrides the default persona prompt when non-empty.
	SystemPrompt string

	// MaxContextTokens is the estimated token budget for the input context.
	// History is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int

	// Observer, when set, inspects each user message for durable instructions
	// (corrections, preferences) before the model sees it. Observer failures
	// are logged, never raised.
	Observer MessageObserver
}

// MessageObserver captures memory-worthy instructions from user messages.
type MessageObserver interface {
	// Observe reports whether the message was recorded as a memory.
	Observe(ctx context.Context, userID, projectID, message string) (bool, error)
}

// CallContext carries the authenticated caller identity stamped onto every
// tool call, so the model can never reach across tenants by guessing
// identifiers.
type CallContext struct {
	// TenantID is the project the conversation is scoped to.
	TenantID string

	// UserID is the user asking, used for memory retrieval.
	UserID string

	// DefaultStartDate and DefaultEndDate fill a tool's date arguments when
	// the model leaves them empty (YYYY-MM-DD).
	DefaultStartDate string
	DefaultEndDate   string
}

// Result is the outcome of one run.
type Result struct {
	// FinalAnswer is the model's answer, or the fixed fallback.
	FinalAnswer string

	// ToolsUsed lists the distinct tool names invoked, in first-use order.
	ToolsUsed []string
}

// Runtime executes the tool loop. Safe for concurrent use; tool bindings are
// fixed at construction.
type Runtime struct {
	model            model.ToolCallingChatModel
	tools            map[string]tool.InvokableTool
	systemPrompt     string
	maxContextTokens int
	observer         MessageObserver
}

// New constructs a Runtime with the tools bound to the chat model.
func New(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}

	infos := make([]*schema.ToolInfo, 0, len(cfg.Tools))
	byName := make(map[string]tool.InvokableTool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("agent: tool info: %w", err)
		}
		infos = append(infos, info)
		byName[info.Name] = t
	}

	bound := cfg.ChatModel
	if len(infos) > 0 {
		var err error
		bound, err = cfg.ChatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("agent: bind tools: %w", err)
		}
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = systemPrompt
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Runtime{
		model:            bound,
		tools:            byName,
		systemPrompt:     prompt,
		maxContextTokens: maxCtx,
		observer:         cfg.Observer,
	}, nil
}

// Run drives the loop for one user message. history holds prior conversation
// turns and may be nil; it is trimmed oldest-first to fit the token budget.
func (r *Runtime) Run(ctx context.Context, history []*schema.Message, userMessage string, call CallContext) (*Result, error) {
	log := logging.FromContext(ctx)

	if r.observer != nil && call.UserID != "" {
		recorded, err := r.observer.Observe(ctx, call.UserID, call.TenantID, userMessage)
		if err != nil {
			log.Warn("failed to record user instruction", slog.Any("error", err))
		} else if recorded {
			log.Info("recorded user instruction as memory", slog.String("user_id", call.UserID))
		}
	}

	fixed := []*schema.Message{
		schema.SystemMessage(r.systemPrompt),
		schema.UserMessage(userMessage),
	}
	trimmed := budget.TrimHistory(fixed, history, r.maxContextTokens)
	if dropped := len(history) - len(trimmed); dropped > 0 {
		log.Warn("dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(trimmed)))
	}

	messages := make([]*schema.Message, 0, len(trimmed)+2+2*maxIterations)
	messages = append(messages, fixed[0])
	messages = append(messages, trimmed...)
	messages = append(messages, fixed[1])

	var toolsUsed []string
	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := r.model.Generate(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("agent: model generate: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			answer := resp.Content
			if answer == "" {
				answer = fallbackAnswer
			}
			return &Result{FinalAnswer: answer, ToolsUsed: toolsUsed}, nil
		}

		messages = append(messages, resp)
		results := r.executeToolCalls(ctx, resp.ToolCalls, call)
		for i, tc := range resp.ToolCalls {
			toolsUsed = appendUnique(toolsUsed, tc.Function.Name)
			messages = append(messages, schema.ToolMessage(results[i], tc.ID,
				schema.WithToolName(tc.Function.Name)))
		}
	}

	log.Warn("tool loop exhausted its iteration budget",
		slog.Int("iterations", maxIterations),
		slog.Any("tools_used", toolsUsed))
	return &Result{FinalAnswer: fallbackAnswer, ToolsUsed: toolsUsed}, nil
}

// executeToolCalls runs every requested call concurrently and returns the
// results in request order. Failures — including panics — become structured
// error payloads the model can read; they are never raised to the caller.
func (r *Runtime) executeToolCalls(ctx context.Context, calls []schema.ToolCall, call CallContext) []string {
	results := make([]string, len(calls))

	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc schema.ToolCall) {
			defer wg.Done()
			results[i] = r.executeOne(ctx, tc, call)
		}(i, tc)
	}
	wg.Wait()

	return results
}

func (r *Runtime) executeOne(ctx context.Context, tc schema.ToolCall, call CallContext) (result string) {
	name := tc.Function.Name
	log := logging.FromContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("tool panicked", slog.String("tool", name), slog.Any("panic", rec))
			result = errorPayload(name, fmt.Sprintf("tool panicked: %v", rec))
		}
	}()

	impl, ok := r.tools[name]
	if !ok {
		return errorPayload(name, "unknown tool")
	}

	args := injectCallContext(tc.Function.Arguments, call)
	log.Debug("executing tool", slog.String("tool", name))

	out, err := impl.InvokableRun(ctx, args)
	if err != nil {
		log.Warn("tool execution failed", slog.String("tool", name), slog.Any("error", err))
		return errorPayload(name, err.Error())
	}
	return out
}

// errorPayload renders a tool failure as JSON so the model can reason about
// it and try a different approach.
func errorPayload(toolName, message string) string {
	payload, err := json.Marshal(map[string]string{
		"error": message,
		"tool":  toolName,
	})
	if err != nil {
		return `{"error":"tool failed"}`
	}
	return string(payload)
}

// injectCallContext merges the caller's identity and default dates into the
// call arguments. The tenant and user IDs always come from the authenticated
// call context: model-supplied values are overwritten, and when the caller
// carries no user ID a model-invented one is dropped, so a tool can never be
// pointed at another tenant's or user's data. Default dates only fill in when
// the model omitted them. Malformed argument JSON is passed through untouched
// so the tool reports the parse error itself.
func injectCallContext(argumentsInJSON string, call CallContext) string {
	args := map[string]any{}
	if argumentsInJSON != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return argumentsInJSON
		}
	}

	forceIdentity := func(key, value string) {
		if value == "" {
			delete(args, key)
			return
		}
		args[key] = value
	}
	forceIdentity(tools.ArgTenantID, call.TenantID)
	forceIdentity(tools.ArgUserID, call.UserID)

	setIfMissing := func(key, value string) {
		if value == "" {
			return
		}
		if existing, ok := args[key].(string); !ok || existing == "" {
			args[key] = value
		}
	}
	setIfMissing(tools.ArgStartDate, call.DefaultStartDate)
	setIfMissing(tools.ArgEndDate, call.DefaultEndDate)

	out, err := json.Marshal(args)
	if err != nil {
		return argumentsInJSON
	}
	return string(out)
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}
