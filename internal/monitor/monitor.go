// Package monitor supervises a running worker: it polls elapsed time and
// process memory and preempts the worker when a limit is breached.
package monitor

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cryguy/sandbox/internal/core"
)

// Handle is the part of a worker the monitor needs.
type Handle interface {
	Done() <-chan struct{}
	Preempt()
}

// Limits bound one supervised run.
type Limits struct {
	Timeout       time.Duration
	MemoryCeiling uint64 // bytes of process RSS; 0 disables the check
	PollInterval  time.Duration
	Reclaim       bool // return freed memory to the OS once the worker is gone
}

// Verdict is the monitor's view of a finished run. Fault is nil when the
// worker finished on its own.
type Verdict struct {
	Fault   *core.Fault
	Elapsed time.Duration
	PeakRSS uint64 // 0 when memory was never sampled
}

// Monitor polls workers. The zero value samples with DefaultSampler and
// logs to slog.Default().
type Monitor struct {
	sampler Sampler
	logger  *slog.Logger
}

// New creates a Monitor. A nil sampler selects DefaultSampler, a nil
// logger slog.Default().
func New(sampler Sampler, logger *slog.Logger) *Monitor {
	if sampler == nil {
		sampler = DefaultSampler()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{sampler: sampler, logger: logger}
}

// Supervise watches h until it finishes. On a breach or when ctx ends it
// preempts h, then waits for h to finish before returning, so the caller
// never sees a verdict while the worker could still run. The preemption
// is repeated every poll until h is done: an engine may drop an interrupt
// that lands between two evaluations.
func (m *Monitor) Supervise(ctx context.Context, h Handle, limits Limits) Verdict {
	if m.sampler == nil || m.logger == nil {
		m = New(m.sampler, m.logger)
	}
	if limits.PollInterval <= 0 {
		limits.PollInterval = core.DefaultPollInterval
	}
	if limits.Timeout <= 0 {
		limits.Timeout = core.DefaultTimeout
	}

	start := time.Now()
	v := m.watch(ctx, h, limits, start)
	if v.Fault != nil {
		m.stop(h, limits.PollInterval)
	}
	v.Elapsed = time.Since(start)
	if limits.Reclaim {
		debug.FreeOSMemory()
	}
	return v
}

func (m *Monitor) stop(h Handle, every time.Duration) {
	h.Preempt()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-h.Done():
			return
		case <-ticker.C:
			h.Preempt()
		}
	}
}

func (m *Monitor) watch(ctx context.Context, h Handle, limits Limits, start time.Time) Verdict {
	var v Verdict
	ticker := time.NewTicker(limits.PollInterval)
	defer ticker.Stop()
	sampleFailed := false

	for {
		select {
		case <-h.Done():
			return v
		case <-ctx.Done():
			select {
			case <-h.Done():
				return v
			default:
			}
			v.Fault = core.NewFault(core.FaultCancelled, "run was cancelled")
			m.logger.Info("monitor: run cancelled", slog.String("cause", context.Cause(ctx).Error()))
			return v
		case <-ticker.C:
		}

		select {
		case <-h.Done():
			return v
		default:
		}

		if elapsed := time.Since(start); elapsed > limits.Timeout {
			v.Fault = core.NewFault(core.FaultTimeout, "script ran longer than %s", limits.Timeout)
			m.logger.Info("monitor: timeout",
				slog.Duration("timeout", limits.Timeout), slog.Duration("elapsed", elapsed))
			return v
		}

		if limits.MemoryCeiling == 0 {
			continue
		}
		rss, err := m.sampler.Sample()
		if err != nil {
			if !sampleFailed {
				m.logger.Warn("monitor: sampling memory", slog.String("error", err.Error()))
				sampleFailed = true
			}
			continue
		}
		v.PeakRSS = max(v.PeakRSS, rss)
		if rss > limits.MemoryCeiling {
			v.Fault = core.NewFault(core.FaultMemory, "process memory reached %s, above the ceiling of %s",
				humanize.IBytes(rss), humanize.IBytes(limits.MemoryCeiling))
			m.logger.Info("monitor: memory ceiling exceeded",
				slog.Uint64("rss", rss), slog.Uint64("ceiling", limits.MemoryCeiling))
			return v
		}
	}
}
