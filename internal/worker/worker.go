// Package worker runs one script on a dedicated goroutine and OS thread
// and can be preempted from outside at any point.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/eventloop"
	"github.com/cryguy/sandbox/internal/namespace"
)

// Config configures one worker.
type Config struct {
	Backend core.Backend
	Limits  core.Config // Timeout bounds the event loop, MemoryCeiling the engine heap
	Seed    uint64      // PRNG seed for the namespace; 0 picks a random one
	Logger  *slog.Logger
}

// Result is what a finished worker reports. Fault is nil on success and
// when the worker was preempted; the preempting party owns that fault.
type Result struct {
	Duration  time.Duration
	Text      string
	Image     *core.Image
	Fault     *core.Fault
	Preempted bool
}

// Worker executes one script.
type Worker struct {
	cfg    Config
	source string
	logger *slog.Logger

	kill      chan struct{}
	killOnce  sync.Once
	preempted atomic.Bool
	done      chan struct{}

	mu sync.Mutex
	rt core.JSRuntime

	result Result
}

// Start launches the worker and returns immediately.
func Start(cfg Config, source string) *Worker {
	cfg.Limits = cfg.Limits.WithDefaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	w := &Worker{
		cfg:    cfg,
		source: source,
		logger: cfg.Logger,
		kill:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Done is closed once the worker has finished and its runtime is closed.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Result returns the outcome of the run. Only valid after Done is closed.
func (w *Worker) Result() Result { return w.result }

// Preempt stops the script. Go-side waits (sleep, the timer loop) wake at
// once and running script code is interrupted by the engine. Safe to call
// repeatedly and from any goroutine.
func (w *Worker) Preempt() {
	w.preempted.Store(true)
	w.killOnce.Do(func() { close(w.kill) })
	w.mu.Lock()
	rt := w.rt
	w.mu.Unlock()
	if rt != nil {
		rt.Interrupt()
	}
}

func (w *Worker) loop() {
	// The thread is never unlocked: it exits with the goroutine and takes
	// any engine thread state with it.
	runtime.LockOSThread()
	defer close(w.done)
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("worker: panic", slog.Any("panic", p))
			w.result.Fault = internalFault()
		}
		w.result.Preempted = w.preempted.Load()
		if w.result.Preempted {
			w.result.Fault = nil
		}
	}()
	w.run()
}

func (w *Worker) run() {
	rt, err := w.cfg.Backend.NewRuntime(w.cfg.Limits.MemoryCeiling)
	if err != nil {
		w.logger.Error("worker: creating runtime", slog.String("error", err.Error()))
		w.result.Fault = internalFault()
		return
	}
	w.mu.Lock()
	w.rt = rt
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.rt = nil
		w.mu.Unlock()
		rt.Close()
	}()
	if w.preempted.Load() {
		return
	}

	start := time.Now()
	ns := namespace.Build(namespace.Options{
		Limits:   w.cfg.Limits,
		Start:    start,
		Deadline: start.Add(w.cfg.Limits.Timeout),
		Kill:     w.kill,
		Seed:     w.cfg.Seed,
		Logger:   w.logger,
	})
	if err := ns.Install(rt); err != nil {
		w.result.Fault = w.engineFault(err)
		return
	}
	if w.preempted.Load() {
		return
	}

	script, err := harnessScript(w.source)
	if err != nil {
		w.logger.Error("worker: building harness", slog.String("error", err.Error()))
		w.result.Fault = internalFault()
		return
	}
	setup, err := rt.EvalString(script)
	if err != nil {
		w.result.Fault = w.engineFault(err)
		return
	}
	hr, err := parseHarness(setup)
	if err != nil {
		w.logger.Error("worker: decoding harness result", slog.String("error", err.Error()))
		w.result.Fault = internalFault()
		return
	}
	lines := newLineMap(hr.Marker, w.source)
	if hr.Compile != nil {
		w.result.Fault = w.thrownFault(ns, lines, hr.Compile, true)
		return
	}

	bodyStart := time.Now()
	fault := w.runBody(rt, ns, lines)
	w.result.Duration = max(time.Since(bodyStart), time.Nanosecond)
	if ns.Overran() && !w.preempted.Load() {
		fault = w.timeoutFault()
	}
	if fault != nil || w.preempted.Load() {
		w.result.Fault = fault
		return
	}

	w.result.Text = ns.Output().Text()
	img, err := ns.Output().Image()
	if err != nil {
		w.logger.Error("worker: encoding image", slog.String("error", err.Error()))
		w.result.Fault = internalFault()
		return
	}
	w.result.Image = img
}

// runBody runs the compiled body, its microtasks and then the timer loop.
func (w *Worker) runBody(rt core.JSRuntime, ns *namespace.Namespace, lines lineMap) *core.Fault {
	call := func(js string) *core.Fault {
		if w.preempted.Load() {
			return nil
		}
		out, err := rt.EvalString(js)
		if err != nil {
			return w.engineFault(err)
		}
		t, err := parseThrown(out)
		if err != nil {
			w.logger.Error("worker: decoding thrown value", slog.String("error", err.Error()))
			return internalFault()
		}
		if t != nil {
			return w.thrownFault(ns, lines, t, false)
		}
		rt.RunMicrotasks()
		return nil
	}

	if f := call(runHook + "()"); f != nil || w.preempted.Load() {
		return f
	}
	var fault *core.Fault
	err := ns.Loop().Drain(ns.Deadline(), w.kill, func(id int) error {
		if f := call(fmt.Sprintf("%s(%d)", namespace.FireHook, id)); f != nil {
			fault = f
			return f
		}
		return nil
	})
	if errors.Is(err, eventloop.ErrDeadline) {
		return w.timeoutFault()
	}
	if err != nil && fault == nil {
		return w.engineFault(err)
	}
	return fault
}

// timeoutFault reports a run whose own waits (sleep, pending timers)
// reach past the time limit. Busy code is caught by the monitor instead.
func (w *Worker) timeoutFault() *core.Fault {
	if w.preempted.Load() {
		return nil
	}
	return core.NewFault(core.FaultTimeout, "script ran longer than %s", w.cfg.Limits.Timeout)
}

// thrownFault maps a value thrown by script code to a fault.
func (w *Worker) thrownFault(ns *namespace.Namespace, lines lineMap, t *thrown, compiling bool) *core.Fault {
	if module, ok := ns.ImportAttempt(); ok && t.Name == namespace.ImportErrorName {
		f := core.NewFault(core.FaultImport, "import of %q is not supported", module)
		f.Name = t.Name
		return f
	}
	if t.Internal && isOutOfMemory(t.Message) {
		return core.NewFault(core.FaultMemory, "script ran out of memory")
	}
	if leaksHost(t.Message) {
		t.Name, t.Message = "TypeError", invalidArgument
	}

	kind := core.FaultRuntime
	if compiling && t.Name == "SyntaxError" {
		kind = core.FaultSyntax
	}
	f := &core.Fault{Kind: kind, Name: t.Name, Message: t.Message, Column: -1}
	if line, col, ok := lines.locate(t.Stack); ok {
		f.Line = line
		f.Excerpt = lines.excerpt(line)
		if col > 0 {
			f.Column = byteColumn(f.Excerpt, col-1)
		}
	}
	return f
}

// engineFault maps an error returned by the engine itself: uncatchable
// exceptions, interrupts and setup failures.
func (w *Worker) engineFault(err error) *core.Fault {
	if w.preempted.Load() {
		return nil
	}
	if f, ok := core.AsFault(err); ok {
		return f
	}
	msg := err.Error()
	if isOutOfMemory(msg) {
		return core.NewFault(core.FaultMemory, "script ran out of memory")
	}
	if name, rest, ok := strings.Cut(msg, ": "); ok && isErrorName(name) {
		rest = firstLine(rest)
		if leaksHost(rest) {
			name, rest = "TypeError", invalidArgument
		}
		f := core.NewFault(core.FaultRuntime, "%s", rest)
		f.Name = name
		return f
	}
	w.logger.Error("worker: engine failure", slog.String("error", msg))
	return internalFault()
}

func internalFault() *core.Fault {
	f := core.NewFault(core.FaultRuntime, "the sandbox failed to run the script")
	f.Name = "InternalError"
	return f
}

// invalidArgument replaces engine binding errors that name host source
// files or raw binding globals.
const invalidArgument = "invalid argument"

func leaksHost(msg string) bool {
	return strings.Contains(msg, ".go:") || strings.Contains(msg, "__raw_")
}

func isOutOfMemory(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "out of memory")
}

func isErrorName(s string) bool {
	if !strings.HasSuffix(s, "Error") || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	return s
}
