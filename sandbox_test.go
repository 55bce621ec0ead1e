package sandbox

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/metrics"
	"github.com/cryguy/sandbox/internal/monitor"
	"github.com/cryguy/sandbox/internal/quickjs"
)

// countingBackend records how many runtimes were created and closed.
type countingBackend struct {
	created atomic.Int32
	closed  atomic.Int32
}

func (b *countingBackend) Name() string { return "counting" }

func (b *countingBackend) NewRuntime(limit uint64) (core.JSRuntime, error) {
	rt, err := quickjs.New().NewRuntime(limit)
	if err != nil {
		return nil, err
	}
	b.created.Add(1)
	bt, _ := rt.(core.BinaryTransferer)
	return &countingRuntime{JSRuntime: rt, BinaryTransferer: bt, closed: &b.closed}, nil
}

type countingRuntime struct {
	core.JSRuntime
	core.BinaryTransferer
	closed *atomic.Int32
	once   sync.Once
}

func (r *countingRuntime) Close() {
	r.once.Do(func() { r.closed.Add(1) })
	r.JSRuntime.Close()
}

func newTestSandbox(t *testing.T, cfg Config, opts ...Option) (*Sandbox, *countingBackend) {
	t.Helper()
	b := &countingBackend{}
	cfg.SkipReclaim = true
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	opts = append([]Option{WithBackend(b)}, opts...)
	return New(cfg, opts...), b
}

func mustFail(t *testing.T, out *Outcome, kind FaultKind) *Failure {
	t.Helper()
	if out.OK() {
		t.Fatalf("expected %v failure, got success %+v", kind, out.Success)
	}
	if out.Failure.Fault.Kind != kind {
		t.Fatalf("fault = %v, want kind %v", out.Failure.Fault, kind)
	}
	return out.Failure
}

func TestInvokeSuccess(t *testing.T) {
	s, b := newTestSandbox(t, Config{})
	out := s.Invoke(context.Background(), Request{Source: "print(math.gcd(12, 18));"})
	if !out.OK() {
		t.Fatalf("failure: %+v", out.Failure.Report)
	}
	if out.Success.Text != "6\n" {
		t.Fatalf("Text = %q", out.Success.Text)
	}
	if out.Success.Duration <= 0 {
		t.Fatalf("Duration = %v", out.Success.Duration)
	}
	if _, err := uuid.Parse(out.RequestID); err != nil {
		t.Fatalf("RequestID %q: %v", out.RequestID, err)
	}
	if b.created.Load() != 1 || b.closed.Load() != 1 {
		t.Fatalf("runtimes created=%d closed=%d", b.created.Load(), b.closed.Load())
	}
}

func TestRequestIDIsKept(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	if out := s.Invoke(context.Background(), Request{ID: "req-1", Source: "1"}); out.RequestID != "req-1" {
		t.Fatalf("RequestID = %q", out.RequestID)
	}
}

func TestSuspiciousPatternNeverStartsWorker(t *testing.T) {
	s, b := newTestSandbox(t, Config{})
	out := s.Invoke(context.Background(), Request{Source: "var p = ({}).__proto__;"})
	f := mustFail(t, out, FaultSuspiciousPattern)
	if f.Report.Title != "Suspicious pattern" {
		t.Fatalf("Title = %q", f.Report.Title)
	}
	if b.created.Load() != 0 {
		t.Fatal("worker was started")
	}
}

func TestSyntaxErrorIsReportedWithLine(t *testing.T) {
	s, b := newTestSandbox(t, Config{})
	out := s.Invoke(context.Background(), Request{Source: "print(1);\nlet = ;\n"})
	f := mustFail(t, out, FaultSyntax)
	if f.Report.Title != "SyntaxError at line 2" || f.Report.Line != 2 {
		t.Fatalf("Report = %+v", f.Report)
	}
	if !strings.HasPrefix(f.Report.Excerpt, "let = ;\n") || !strings.HasSuffix(f.Report.Excerpt, "^") {
		t.Fatalf("Excerpt = %q", f.Report.Excerpt)
	}
	if b.created.Load() != 0 {
		t.Fatal("worker was started for unparsable source")
	}
}

func TestImportAttempts(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	for _, src := range []string{
		`import fs from "fs";`,
		`const os = require("os");`,
		`import("net").then(print);`,
		"var name = 'child' + '_process';\nrequire(name);",
		`var m = "fs"; import(m);`,
		"var m = 'fs';\nimport(m).catch(function() {});",
	} {
		out := s.Invoke(context.Background(), Request{Source: src})
		f := mustFail(t, out, FaultImport)
		if f.Report.Title != "Imports are not supported" {
			t.Fatalf("%q: Title = %q", src, f.Report.Title)
		}
	}
}

func TestRuntimeErrorOnSecondLine(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	out := s.Invoke(context.Background(), Request{Source: "var x = 1;\nx.y.z = 2;\n"})
	f := mustFail(t, out, FaultRuntime)
	if f.Report.Line != 2 || f.Report.Title != "TypeError at line 2" {
		t.Fatalf("Report = %+v", f.Report)
	}
	if strings.Contains(f.Report.Body, "<input>") || strings.Contains(f.Report.Body, ".go") {
		t.Fatalf("Body leaks host detail: %q", f.Report.Body)
	}
}

func TestInfiniteLoopTimesOut(t *testing.T) {
	s, b := newTestSandbox(t, Config{})
	timeout := 200 * time.Millisecond
	start := time.Now()
	out := s.Invoke(context.Background(), Request{Source: "for (;;) {}", Timeout: timeout})
	elapsed := time.Since(start)
	f := mustFail(t, out, FaultTimeout)
	if f.Report.Title != "Timed out" {
		t.Fatalf("Title = %q", f.Report.Title)
	}
	if elapsed > timeout+time.Second {
		t.Fatalf("took %v", elapsed)
	}
	if b.closed.Load() != b.created.Load() {
		t.Fatal("runtime still open after Invoke returned")
	}
}

func TestSleepingScriptTimesOut(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	start := time.Now()
	out := s.Invoke(context.Background(), Request{Source: "time.sleep(30);", Timeout: 100 * time.Millisecond})
	mustFail(t, out, FaultTimeout)
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("took %v", d)
	}
}

func TestMemoryCeilingFromSampler(t *testing.T) {
	huge := monitor.SamplerFunc(func() (uint64, error) { return 1 << 40, nil })
	s, _ := newTestSandbox(t, Config{}, WithSampler(huge))
	out := s.Invoke(context.Background(), Request{Source: "for (;;) {}", Timeout: 10 * time.Second})
	f := mustFail(t, out, FaultMemory)
	if f.Report.Title != "Memory limit exceeded" {
		t.Fatalf("Title = %q", f.Report.Title)
	}
}

func TestBreachOnFirstPollStopsRun(t *testing.T) {
	huge := monitor.SamplerFunc(func() (uint64, error) { return 1 << 40, nil })
	s, _ := newTestSandbox(t, Config{PollInterval: time.Millisecond}, WithSampler(huge))
	done := make(chan *Outcome, 1)
	go func() {
		done <- s.Invoke(context.Background(), Request{Source: "for (;;) {}", Timeout: 10 * time.Second})
	}()
	select {
	case out := <-done:
		mustFail(t, out, FaultMemory)
	case <-time.After(8 * time.Second):
		t.Fatal("Invoke still running after an immediate memory breach")
	}
}

func TestEngineHeapLimit(t *testing.T) {
	lowRSS := monitor.SamplerFunc(func() (uint64, error) { return 1, nil })
	s, _ := newTestSandbox(t, Config{MemoryCeiling: 32 << 20}, WithSampler(lowRSS))
	src := "var keep = [];\nfor (;;) keep.push(new Array(100000).fill(0.5));"
	out := s.Invoke(context.Background(), Request{Source: src, Timeout: 20 * time.Second})
	mustFail(t, out, FaultMemory)
}

func TestCancelledContext(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	out := s.Invoke(ctx, Request{Source: "for (;;) {}", Timeout: time.Minute})
	f := mustFail(t, out, FaultCancelled)
	if f.Report.Title != "Cancelled" {
		t.Fatalf("Title = %q", f.Report.Title)
	}
}

func TestNamespaceDoesNotLeakBetweenRuns(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	a := s.Invoke(context.Background(), Request{Source: "globalThis.shared = 'a'; Object.prototype.mark = 1; print = null;"})
	if !a.OK() {
		t.Fatalf("script A failed: %+v", a.Failure.Report)
	}
	b := s.Invoke(context.Background(), Request{Source: "print(typeof shared, typeof ({}).mark);"})
	if !b.OK() {
		t.Fatalf("script B failed: %+v", b.Failure.Report)
	}
	if b.Success.Text != "undefined undefined\n" {
		t.Fatalf("script B saw %q", b.Success.Text)
	}
}

func TestConcurrentInvokesAreIndependent(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	var wg sync.WaitGroup
	var loop, ok *Outcome
	wg.Add(2)
	go func() {
		defer wg.Done()
		loop = s.Invoke(context.Background(), Request{Source: "for (;;) {}", Timeout: 150 * time.Millisecond})
	}()
	go func() {
		defer wg.Done()
		ok = s.Invoke(context.Background(), Request{Source: "print('done');"})
	}()
	wg.Wait()
	mustFail(t, loop, FaultTimeout)
	if !ok.OK() || ok.Success.Text != "done\n" {
		t.Fatalf("normal run = %+v", ok)
	}
}

func TestImageOutcome(t *testing.T) {
	s, _ := newTestSandbox(t, Config{})
	src := `
var s = gfx.Surface(16, 16);
s.fill('white');
gfx.draw.circle(s, 'blue', [8, 8], 5);
output.image = s;
`
	out := s.Invoke(context.Background(), Request{Source: src})
	if !out.OK() {
		t.Fatalf("failure: %+v", out.Failure.Report)
	}
	if out.Success.Image == nil || out.Success.Image.ContentType != "image/png" || len(out.Success.Image.Data) == 0 {
		t.Fatalf("Image = %+v", out.Success.Image)
	}
}

func TestMetricsAreRecorded(t *testing.T) {
	c := metrics.NewCollector()
	s, _ := newTestSandbox(t, Config{}, WithMetrics(c))
	s.Invoke(context.Background(), Request{Source: "print(1)"})
	s.Invoke(context.Background(), Request{Source: "x.__proto__"})
	families, err := c.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var runs float64
	for _, mf := range families {
		if mf.GetName() == "sandbox_runs_total" {
			for _, m := range mf.GetMetric() {
				runs += m.GetCounter().GetValue()
			}
		}
	}
	if runs != 2 {
		t.Fatalf("runs_total = %v, want 2", runs)
	}
}

func TestRun(t *testing.T) {
	out := Run(context.Background(), "print('hi')")
	if !out.OK() || out.Success.Text != "hi\n" {
		t.Fatalf("Run = %+v", out)
	}
}
