package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/guestlytics/insight-go/internal/agent"
	"github.com/guestlytics/insight-go/internal/indexer"
)

// fakeAnswerer scripts the result of Run and records the call it received.
type fakeAnswerer struct {
	result *agent.Result
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls []agent.CallContext
	msgs  []string
}

func (f *fakeAnswerer) Run(ctx context.Context, _ []*schema.Message, userMessage string, call agent.CallContext) (*agent.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.msgs = append(f.msgs, userMessage)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &agent.Result{FinalAnswer: "ok"}, nil
	}
	return f.result, nil
}

// fakeSyncRunner scripts the sync state and counts RunSync invocations.
type fakeSyncRunner struct {
	mu      sync.Mutex
	status  indexer.SyncStatus
	runs    int
	started chan struct{}
}

func (f *fakeSyncRunner) RunSync(context.Context) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	return nil
}

func (f *fakeSyncRunner) Status() indexer.SyncStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSyncRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// newTestServer builds a minimal *Server for direct handler tests. The
// metrics use a fresh registry so parallel tests never collide.
func newTestServer() *Server {
	return &Server{
		answerer: &fakeAnswerer{},
		cfg:      &Config{QueryTimeout: time.Minute},
		metrics:  newServerMetrics(prometheus.NewRegistry()),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	fake := &fakeAnswerer{result: &agent.Result{
		FinalAnswer: "Revenue was €45,230 in February.",
		ToolsUsed:   []string{"search_metrics"},
	}}
	s.answerer = fake

	w := postJSON(t, s.handleQuery, "/api/query",
		`{"question":"revenue last month?","tenant_id":"hotel-a","user_id":"user-7"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "Revenue was €45,230 in February." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != "search_metrics" {
		t.Errorf("tools_used = %v", resp.ToolsUsed)
	}

	if len(fake.calls) != 1 {
		t.Fatalf("answerer invoked %d times, want 1", len(fake.calls))
	}
	if call := fake.calls[0]; call.TenantID != "hotel-a" || call.UserID != "user-7" {
		t.Errorf("call context = %+v", call)
	}
	if fake.msgs[0] != "revenue last month?" {
		t.Errorf("user message = %q", fake.msgs[0])
	}
}

func TestHandleQuery_MissingFields(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"missing tenant", `{"question":"revenue?"}`},
		{"missing question", `{"tenant_id":"hotel-a"}`},
		{"invalid json", `{{`},
	}
	for _, tc := range cases {
		w := postJSON(t, s.handleQuery, "/api/query", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestHandleQuery_AnswererError(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.answerer = &fakeAnswerer{err: errors.New("model backend unreachable")}

	w := postJSON(t, s.handleQuery, "/api/query",
		`{"question":"revenue?","tenant_id":"hotel-a"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Error, "unreachable") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestHandleQuery_Timeout(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.cfg.QueryTimeout = 10 * time.Millisecond
	s.answerer = &fakeAnswerer{delay: time.Second}

	w := postJSON(t, s.handleQuery, "/api/query",
		`{"question":"revenue?","tenant_id":"hotel-a"}`)

	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d — body: %s", w.Code, w.Body.String())
	}
}

func TestHandleSyncRun_Accepted(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	syncer := &fakeSyncRunner{started: make(chan struct{})}
	s.syncer = syncer

	w := postJSON(t, s.handleSyncRun, "/api/sync/run", "")

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp syncRunResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Started {
		t.Error("expected started:true")
	}

	select {
	case <-syncer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("RunSync was never invoked")
	}
}

func TestHandleSyncRun_AlreadyRunning(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	syncer := &fakeSyncRunner{status: indexer.SyncStatus{IsRunning: true}}
	s.syncer = syncer

	w := postJSON(t, s.handleSyncRun, "/api/sync/run", "")

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if syncer.runCount() != 0 {
		t.Errorf("RunSync invoked %d times, want 0", syncer.runCount())
	}
}

func TestHandleSyncStatus(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.syncer = &fakeSyncRunner{status: indexer.SyncStatus{
		TenantsProcessed: 12,
		VectorsUpserted:  96,
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	w := httptest.NewRecorder()
	s.handleSyncStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status indexer.SyncStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.TenantsProcessed != 12 || status.VectorsUpserted != 96 {
		t.Errorf("status = %+v", status)
	}
}

func TestHandleSync_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	w := postJSON(t, s.handleSyncRun, "/api/sync/run", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("run: expected 503 without a worker, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	w2 := httptest.NewRecorder()
	s.handleSyncStatus(w2, req)
	if w2.Code != http.StatusServiceUnavailable {
		t.Errorf("status: expected 503 without a worker, got %d", w2.Code)
	}
}

func TestNew_RequiresAnswerer(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, &Config{}); err == nil {
		t.Fatal("expected error for nil answerer")
	}
}
