package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// fakeModel scripts one response per Generate call and records the message
// lists it was invoked with.
type fakeModel struct {
	mu     sync.Mutex
	script []*schema.Message
	seen   [][]*schema.Message
	err    error
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen = append(f.seen, input)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.script) == 0 {
		return schema.AssistantMessage("done", nil), nil
	}
	next := f.script[0]
	f.script = f.script[1:]
	return next, nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

// fakeTool records the arguments it was invoked with.
type fakeTool struct {
	name   string
	result string
	err    error
	panics bool

	mu   sync.Mutex
	args []string
}

func (f *fakeTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        f.name,
		Desc:        "test tool",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (f *fakeTool) InvokableRun(_ context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	f.mu.Lock()
	f.args = append(f.args, argumentsInJSON)
	f.mu.Unlock()

	if f.panics {
		panic("tool exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func toolCallMessage(id, name, arguments string) *schema.Message {
	msg := schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})
	return msg
}

func newTestRuntime(t *testing.T, m *fakeModel, ts ...tool.InvokableTool) *Runtime {
	t.Helper()
	r, err := New(context.Background(), &Config{ChatModel: m, Tools: ts})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestRunDirectAnswer(t *testing.T) {
	t.Parallel()

	m := &fakeModel{script: []*schema.Message{
		schema.AssistantMessage("Revenue was €45,230 in February.", nil),
	}}
	r := newTestRuntime(t, m)

	res, err := r.Run(context.Background(), nil, "revenue last month?", CallContext{TenantID: "hotel-a"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalAnswer != "Revenue was €45,230 in February." {
		t.Errorf("FinalAnswer = %q", res.FinalAnswer)
	}
	if len(res.ToolsUsed) != 0 {
		t.Errorf("ToolsUsed = %v, want none", res.ToolsUsed)
	}
	if len(m.seen) != 1 {
		t.Fatalf("model invoked %d times, want 1", len(m.seen))
	}
	if first := m.seen[0][0]; first.Role != schema.System {
		t.Errorf("first message role = %s, want system", first.Role)
	}
}

func TestRunToolCallThenAnswer(t *testing.T) {
	t.Parallel()

	search := &fakeTool{name: "search_metrics", result: "Indexed data: 183 bookings in February 2025."}
	m := &fakeModel{script: []*schema.Message{
		toolCallMessage("call-1", "search_metrics", `{"query":"bookings last month"}`),
		schema.AssistantMessage("You had 183 bookings in February 2025.", nil),
	}}
	r := newTestRuntime(t, m, search)

	res, err := r.Run(context.Background(), nil, "bookings last month?",
		CallContext{TenantID: "hotel-a", UserID: "user-7"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.FinalAnswer != "You had 183 bookings in February 2025." {
		t.Errorf("FinalAnswer = %q", res.FinalAnswer)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "search_metrics" {
		t.Errorf("ToolsUsed = %v, want [search_metrics]", res.ToolsUsed)
	}

	// Caller identity must be injected into the tool arguments.
	if len(search.args) != 1 {
		t.Fatalf("tool invoked %d times, want 1", len(search.args))
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(search.args[0]), &args); err != nil {
		t.Fatalf("tool args are not valid JSON: %v", err)
	}
	if args["tenant_id"] != "hotel-a" || args["user_id"] != "user-7" {
		t.Errorf("injected identity = %v/%v, want hotel-a/user-7", args["tenant_id"], args["user_id"])
	}
	if args["query"] != "bookings last month" {
		t.Errorf("model-provided argument overwritten: query = %v", args["query"])
	}

	// The second model call must see the tool result as a tool message.
	second := m.seen[1]
	last := second[len(second)-1]
	if last.Role != schema.Tool || last.ToolCallID != "call-1" {
		t.Errorf("last message = role %s, call id %q; want tool/call-1", last.Role, last.ToolCallID)
	}
	if !strings.Contains(last.Content, "183 bookings") {
		t.Errorf("tool message content = %q", last.Content)
	}
}

func TestRunModelSuppliedIdentityIsOverridden(t *testing.T) {
	t.Parallel()

	search := &fakeTool{name: "search_metrics", result: "no data"}
	m := &fakeModel{script: []*schema.Message{
		toolCallMessage("call-1", "search_metrics",
			`{"query":"revenue","tenant_id":"hotel-b","user_id":"someone-else"}`),
		schema.AssistantMessage("done", nil),
	}}
	r := newTestRuntime(t, m, search)

	if _, err := r.Run(context.Background(), nil, "revenue?",
		CallContext{TenantID: "hotel-a", UserID: "user-7"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(search.args[0]), &args); err != nil {
		t.Fatalf("tool args are not valid JSON: %v", err)
	}
	if args["tenant_id"] != "hotel-a" {
		t.Errorf("tenant_id = %v, want the caller's hotel-a", args["tenant_id"])
	}
	if args["user_id"] != "user-7" {
		t.Errorf("user_id = %v, want the caller's user-7", args["user_id"])
	}
}

func TestRunAnonymousCallerStripsModelUserID(t *testing.T) {
	t.Parallel()

	search := &fakeTool{name: "search_metrics", result: "no data"}
	m := &fakeModel{script: []*schema.Message{
		toolCallMessage("call-1", "search_metrics",
			`{"query":"revenue","user_id":"someone-else"}`),
		schema.AssistantMessage("done", nil),
	}}
	r := newTestRuntime(t, m, search)

	if _, err := r.Run(context.Background(), nil, "revenue?",
		CallContext{TenantID: "hotel-a"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(search.args[0]), &args); err != nil {
		t.Fatalf("tool args are not valid JSON: %v", err)
	}
	if _, present := args["user_id"]; present {
		t.Errorf("user_id = %v, want it stripped for anonymous callers", args["user_id"])
	}
}

func TestRunFailingToolSurfacesErrorToModel(t *testing.T) {
	t.Parallel()

	broken := &fakeTool{name: "fetch_google_ads_stats", err: errors.New("google ads API timeout")}
	m := &fakeModel{script: []*schema.Message{
		toolCallMessage("call-1", "fetch_google_ads_stats", `{}`),
		schema.AssistantMessage("I couldn't reach Google Ads just now; here is what the index shows instead.", nil),
	}}
	r := newTestRuntime(t, m, broken)

	res, err := r.Run(context.Background(), nil, "google ads spend today?", CallContext{TenantID: "hotel-a"})
	if err != nil {
		t.Fatalf("Run() error = %v, tool failures must not propagate", err)
	}
	if res.FinalAnswer == "" {
		t.Fatal("FinalAnswer is empty")
	}

	second := m.seen[1]
	last := second[len(second)-1]
	var payload map[string]string
	if err := json.Unmarshal([]byte(last.Content), &payload); err != nil {
		t.Fatalf("error payload is not JSON: %v\n%s", err, last.Content)
	}
	if !strings.Contains(payload["error"], "timeout") {
		t.Errorf("error payload = %v, want the failure message", payload)
	}
}

func TestRunPanickingToolIsCaptured(t *testing.T) {
	t.Parallel()

	bomb := &fakeTool{name: "search_metrics", panics: true}
	m := &fakeModel{script: []*schema.Message{
		toolCallMessage("call-1", "search_metrics", `{}`),
		schema.AssistantMessage("ok", nil),
	}}
	r := newTestRuntime(t, m, bomb)

	res, err := r.Run(context.Background(), nil, "anything", CallContext{TenantID: "hotel-a"})
	if err != nil {
		t.Fatalf("Run() error = %v, panics must be captured", err)
	}
	if res.FinalAnswer != "ok" {
		t.Errorf("FinalAnswer = %q", res.FinalAnswer)
	}
}

func TestRunExhaustedIterationsReturnsFallback(t *testing.T) {
	t.Parallel()

	looping := &fakeTool{name: "search_metrics", result: "partial data"}
	var script []*schema.Message
	for i := 0; i < maxIterations+2; i++ {
		script = append(script, toolCallMessage("call-x", "search_metrics", `{}`))
	}
	m := &fakeModel{script: script}
	r := newTestRuntime(t, m, looping)

	res, err := r.Run(context.Background(), nil, "anything", CallContext{TenantID: "hotel-a"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalAnswer != fallbackAnswer {
		t.Errorf("FinalAnswer = %q, want the fixed fallback", res.FinalAnswer)
	}
	if len(m.seen) != maxIterations {
		t.Errorf("model invoked %d times, want exactly %d", len(m.seen), maxIterations)
	}
	if len(res.ToolsUsed) != 1 {
		t.Errorf("ToolsUsed = %v, want deduplicated single entry", res.ToolsUsed)
	}
}

type fakeObserver struct {
	mu       sync.Mutex
	err      error
	messages []string
	users    []string
}

func (f *fakeObserver) Observe(_ context.Context, userID, _, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.users = append(f.users, userID)
	f.messages = append(f.messages, message)
	return f.err == nil, f.err
}

func TestRunObserverSeesUserMessage(t *testing.T) {
	t.Parallel()

	obs := &fakeObserver{}
	m := &fakeModel{script: []*schema.Message{
		schema.AssistantMessage("noted", nil),
	}}
	r, err := New(context.Background(), &Config{ChatModel: m, Observer: obs})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	msg := "that's wrong, I meant direct bookings"
	if _, err := r.Run(context.Background(), nil, msg, CallContext{TenantID: "hotel-a", UserID: "user-7"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(obs.messages) != 1 || obs.messages[0] != msg {
		t.Errorf("observer saw %v, want the user message", obs.messages)
	}
	if obs.users[0] != "user-7" {
		t.Errorf("observer user = %q, want user-7", obs.users[0])
	}
}

func TestRunObserverSkippedWithoutUser(t *testing.T) {
	t.Parallel()

	obs := &fakeObserver{}
	m := &fakeModel{script: []*schema.Message{
		schema.AssistantMessage("ok", nil),
	}}
	r, err := New(context.Background(), &Config{ChatModel: m, Observer: obs})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := r.Run(context.Background(), nil, "anything", CallContext{TenantID: "hotel-a"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(obs.messages) != 0 {
		t.Errorf("observer invoked for anonymous caller: %v", obs.messages)
	}
}

func TestRunObserverErrorDoesNotFailRun(t *testing.T) {
	t.Parallel()

	obs := &fakeObserver{err: errors.New("memory store down")}
	m := &fakeModel{script: []*schema.Message{
		schema.AssistantMessage("answered anyway", nil),
	}}
	r, err := New(context.Background(), &Config{ChatModel: m, Observer: obs})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := r.Run(context.Background(), nil, "always use euros", CallContext{TenantID: "hotel-a", UserID: "user-7"})
	if err != nil {
		t.Fatalf("Run() error = %v, observer failures must not propagate", err)
	}
	if res.FinalAnswer != "answered anyway" {
		t.Errorf("FinalAnswer = %q", res.FinalAnswer)
	}
}

func TestRunUnknownToolBecomesErrorPayload(t *testing.T) {
	t.Parallel()

	m := &fakeModel{script: []*schema.Message{
		toolCallMessage("call-1", "nonexistent_tool", `{}`),
		schema.AssistantMessage("recovered", nil),
	}}
	r := newTestRuntime(t, m)

	res, err := r.Run(context.Background(), nil, "anything", CallContext{TenantID: "hotel-a"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalAnswer != "recovered" {
		t.Errorf("FinalAnswer = %q", res.FinalAnswer)
	}

	second := m.seen[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "unknown tool") {
		t.Errorf("payload = %q, want unknown-tool error", last.Content)
	}
}
