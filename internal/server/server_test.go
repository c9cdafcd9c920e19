package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"hl-signal-bot/internal/errs"
	"hl-signal-bot/internal/exchange"
	"hl-signal-bot/internal/execution"
)

type fakeExecutor struct {
	calls atomic.Int32
	out   execution.Outcome
	err   error

	mu   sync.Mutex
	last exchange.Signal
}

func (f *fakeExecutor) Execute(ctx context.Context, sig exchange.Signal) (execution.Outcome, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = sig
	f.mu.Unlock()
	out := f.out
	out.Side = sig.Side
	return out, f.err
}

func newTestServer(t *testing.T, exec Executor, state *State) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewMux(state, exec, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func postWebhook(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestWebhookInvalidPayloads(t *testing.T) {
	bodies := []string{
		`not json`,
		`{}`,
		`{"side": null}`,
		`{"side": 1}`,
		`{"side": "LONG"}`,
		`{"side": "close"}`,
		`{"side": "buy"}`,
		`["long"]`,
	}
	for _, body := range bodies {
		exec := &fakeExecutor{}
		srv := newTestServer(t, exec, NewState(false))

		resp, decoded := postWebhook(t, srv.URL, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
		if decoded["error"] != "invalid payload" {
			t.Fatalf("%s: unexpected body %v", body, decoded)
		}
		if exec.calls.Load() != 0 {
			t.Fatalf("%s: executor called for invalid payload", body)
		}
	}
}

func TestWebhookSent(t *testing.T) {
	exec := &fakeExecutor{out: execution.Outcome{Status: execution.StatusSent, RequestID: "req-1", Size: "0.19"}}
	srv := newTestServer(t, exec, NewState(false))

	resp, decoded := postWebhook(t, srv.URL, `{"side":"long"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if decoded["status"] != "sent" || decoded["request_id"] != "req-1" || decoded["size"] != "0.19" || decoded["side"] != "long" {
		t.Fatalf("unexpected body %v", decoded)
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.last.Side != exchange.Long {
		t.Fatalf("executor got %v", exec.last)
	}
}

func TestWebhookSkipped(t *testing.T) {
	exec := &fakeExecutor{out: execution.Outcome{Status: execution.StatusSkipped, Reason: "no_position", RequestID: "req-2"}}
	srv := newTestServer(t, exec, NewState(false))

	resp, decoded := postWebhook(t, srv.URL, `{"side":"short"}`)
	if resp.StatusCode != http.StatusOK || decoded["status"] != "skipped" || decoded["reason"] != "no_position" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, decoded)
	}
}

func TestWebhookExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{
		out: execution.Outcome{RequestID: "req-3"},
		err: errs.New(errs.UpstreamMalformed, "fetch state", "non-JSON response: Internal error"),
	}
	srv := newTestServer(t, exec, NewState(false))

	resp, decoded := postWebhook(t, srv.URL, `{"side":"long"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if decoded["error"] != "execution failed" || decoded["kind"] != "upstream_malformed" || decoded["request_id"] != "req-3" {
		t.Fatalf("unexpected body %v", decoded)
	}
	if details, _ := decoded["details"].(string); !strings.Contains(details, "Internal error") {
		t.Fatalf("details should carry the upstream body, got %q", details)
	}
}

func TestRootReportsUptime(t *testing.T) {
	srv := newTestServer(t, &fakeExecutor{}, NewState(false))

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || decoded["status"] != "ok" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, decoded)
	}
	if _, ok := decoded["uptime_sec"].(float64); !ok {
		t.Fatalf("uptime_sec missing: %v", decoded)
	}
}

func TestReadyz(t *testing.T) {
	state := NewState(true)
	srv := newTestServer(t, &fakeExecutor{}, state)

	check := func(want int) {
		t.Helper()
		resp, err := http.Get(srv.URL + "/readyz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("expected %d, got %d", want, resp.StatusCode)
		}
	}

	check(http.StatusServiceUnavailable)
	state.SetReady(true)
	check(http.StatusServiceUnavailable)
	state.SetWSConnected(true)
	check(http.StatusOK)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeExecutor{}, NewState(false))
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	srv := newTestServer(t, &fakeExecutor{}, NewState(false))
	resp, err := http.Get(srv.URL + "/webhook")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
