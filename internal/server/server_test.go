package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cryguy/sandbox"
	"github.com/cryguy/sandbox/internal/metrics"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	m := metrics.NewCollector()
	sb := sandbox.New(sandbox.Config{SkipReclaim: true, PollInterval: 10 * time.Millisecond}, sandbox.WithMetrics(m))
	ts := httptest.NewServer(New(sb, m, nil, 4).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, req Request) {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decoding %s: %v", data, err)
	}
	return resp
}

func TestRunOverWebsocket(t *testing.T) {
	conn := dial(t, newTestServer(t))
	send(t, conn, Request{ID: "a", Source: "print('hello')"})
	resp := receive(t, conn)
	if resp.ID != "a" || !resp.OK || resp.Text != "hello\n" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestFailureOverWebsocket(t *testing.T) {
	conn := dial(t, newTestServer(t))
	send(t, conn, Request{ID: "b", Source: "var a = 1;\nundefinedName;"})
	resp := receive(t, conn)
	if resp.OK || resp.Failure == nil {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Failure.Kind != "runtime" || resp.Failure.Title != "ReferenceError at line 2" {
		t.Fatalf("failure = %+v", resp.Failure)
	}
}

func TestRequestsOnOneConnectionRunConcurrently(t *testing.T) {
	conn := dial(t, newTestServer(t))
	send(t, conn, Request{ID: "slow", Source: "for (;;) {}", TimeoutSeconds: 0.3})
	send(t, conn, Request{ID: "fast", Source: "print(1)"})
	first := receive(t, conn)
	second := receive(t, conn)
	if first.ID != "fast" || second.ID != "slow" {
		t.Fatalf("order = %s, %s", first.ID, second.ID)
	}
	if second.Failure == nil || second.Failure.Kind != "timeout" {
		t.Fatalf("slow = %+v", second)
	}
}

func TestBadFrame(t *testing.T) {
	conn := dial(t, newTestServer(t))
	if err := conn.Write(context.Background(), websocket.MessageText, []byte("{")); err != nil {
		t.Fatal(err)
	}
	resp := receive(t, conn)
	if resp.Failure == nil || resp.Failure.Kind != "bad_request" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts)
	send(t, conn, Request{Source: "print(1)"})
	receive(t, conn)

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "sandbox_runs_total") {
		t.Fatalf("metrics body missing sandbox_runs_total:\n%s", body)
	}
}
