// Package sandbox runs short, untrusted scripts inside the host process
// with bounded wall-clock time and memory and a closed set of capabilities.
//
// Every Invoke gets a fresh runtime and namespace on its own worker; the
// worker is always finished before Invoke returns.
package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/diag"
	"github.com/cryguy/sandbox/internal/guard"
	"github.com/cryguy/sandbox/internal/metrics"
	"github.com/cryguy/sandbox/internal/monitor"
	"github.com/cryguy/sandbox/internal/precheck"
	"github.com/cryguy/sandbox/internal/worker"
)

// Sandbox executes scripts. It holds no per-run state and is safe for
// concurrent use.
type Sandbox struct {
	config  Config
	backend core.Backend
	logger  *slog.Logger
	metrics *metrics.Collector
	sampler monitor.Sampler
	monitor *monitor.Monitor
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) { s.logger = l }
}

// WithMetrics records every run on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Sandbox) { s.metrics = c }
}

// WithSampler replaces the process memory sampler used by the monitor.
func WithSampler(sm monitor.Sampler) Option {
	return func(s *Sandbox) { s.sampler = sm }
}

// WithBackend replaces the engine selected at build time.
func WithBackend(b Backend) Option {
	return func(s *Sandbox) { s.backend = b }
}

// New creates a Sandbox. Zero fields of cfg take their defaults.
func New(cfg Config, opts ...Option) *Sandbox {
	s := &Sandbox{config: cfg.WithDefaults()}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil {
		s.backend = newBackend()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.monitor = monitor.New(s.sampler, s.logger)
	return s
}

var defaultSandbox = sync.OnceValue(func() *Sandbox { return New(Config{}) })

// Run executes source with the default configuration.
func Run(ctx context.Context, source string) *Outcome {
	return defaultSandbox().Invoke(ctx, Request{Source: source})
}

// Invoke runs one script and returns its outcome. It never panics on
// script behaviour and returns only after the script's worker has
// finished. Cancelling ctx preempts the script.
func (s *Sandbox) Invoke(ctx context.Context, req Request) *Outcome {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	limits := s.resolveLimits(req)
	logger := s.logger.With(slog.String("request_id", id), slog.String("backend", s.backend.Name()))

	// 1. Static pattern guard.
	if err := guard.Scan(req.Source); err != nil {
		return s.reject(id, logger, err)
	}

	// 2. Parse and reject imports before spending a worker.
	if err := precheck.Check(req.Source); err != nil {
		return s.reject(id, logger, err)
	}

	// 3. Start the worker and supervise it.
	start := time.Now()
	s.metrics.RunStarted()
	w := worker.Start(worker.Config{
		Backend: s.backend,
		Limits:  limits,
		Logger:  logger,
	}, req.Source)
	verdict := s.monitor.Supervise(ctx, w, monitor.Limits{
		Timeout:       limits.Timeout,
		MemoryCeiling: limits.MemoryCeiling,
		PollInterval:  limits.PollInterval,
		Reclaim:       !limits.SkipReclaim,
	})
	result := w.Result()
	elapsed := time.Since(start)
	s.metrics.ObserveRSS(verdict.PeakRSS)

	// 4. Translate.
	fault := verdict.Fault
	if fault == nil {
		fault = result.Fault
	}
	if fault == nil && result.Preempted {
		fault = core.NewFault(core.FaultCancelled, "run was stopped")
	}
	if fault != nil {
		s.metrics.RunFinished(s.backend.Name(), fault.Kind.String(), elapsed, verdict.Fault != nil)
		logger.Info("sandbox: run failed",
			slog.String("fault", fault.Kind.String()),
			slog.Int("line", fault.Line),
			slog.Duration("elapsed", elapsed))
		return s.failure(id, fault)
	}

	s.metrics.RunFinished(s.backend.Name(), "success", elapsed, false)
	logger.Debug("sandbox: run finished",
		slog.Duration("duration", result.Duration),
		slog.Int("text_bytes", len(result.Text)))
	return &Outcome{
		RequestID: id,
		Success: &Success{
			Text:     result.Text,
			Image:    result.Image,
			Duration: result.Duration,
		},
	}
}

// resolveLimits applies the sandbox configuration to zero request limits.
func (s *Sandbox) resolveLimits(req Request) Config {
	limits := s.config
	if req.Timeout > 0 {
		limits.Timeout = req.Timeout
	}
	if req.MemoryCeiling > 0 {
		limits.MemoryCeiling = req.MemoryCeiling
	}
	return limits
}

func (s *Sandbox) reject(id string, logger *slog.Logger, err error) *Outcome {
	fault, ok := core.AsFault(err)
	if !ok {
		logger.Error("sandbox: rejecting script", slog.String("error", err.Error()))
		fault = core.NewFault(core.FaultRuntime, "the sandbox failed to check the script")
		fault.Name = "InternalError"
	}
	s.metrics.Rejected(s.backend.Name(), fault.Kind.String())
	logger.Info("sandbox: script rejected", slog.String("fault", fault.Kind.String()))
	return s.failure(id, fault)
}

func (s *Sandbox) failure(id string, fault *core.Fault) *Outcome {
	return &Outcome{
		RequestID: id,
		Failure: &Failure{
			Fault:  fault,
			Report: diag.Translate(fault, diag.Options{InlineLimit: s.config.InlineLimit}),
		},
	}
}
