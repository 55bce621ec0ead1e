package namespace

import (
	"fmt"
	"math"
	"time"

	"github.com/cryguy/sandbox/internal/core"
)

const clockJS = `
(function(now, since, sleep) {
	globalThis.time = Object.freeze({
		time: function() { return now(); },
		monotonic: function() { return since(); },
		perf: function() { return since(); },
		sleep: function(seconds) {
			seconds = Number(seconds);
			if (!(seconds >= 0)) throw new RangeError('sleep length must be non-negative');
			sleep(seconds);
		}
	});
})(__clock_now, __clock_since, __clock_sleep);
`

// sleep blocks for d, returning early when the run is killed or its
// deadline passes. It reports whether the full duration elapsed. A sleep
// cut short by the deadline marks the run as overrun.
func (ns *Namespace) sleep(d time.Duration) bool {
	left := time.Until(ns.opts.Deadline)
	overrun := d > left
	if overrun {
		d = max(left, 0)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ns.opts.Kill:
		return false
	case <-t.C:
	}
	if overrun {
		ns.overran = true
		return false
	}
	return true
}

// duration converts n units to a Duration, saturating instead of
// overflowing. NaN and negative values are zero.
func duration(n float64, unit time.Duration) time.Duration {
	f := n * float64(unit)
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	}
	return time.Duration(f)
}

func setupClock(ns *Namespace, rt core.JSRuntime) error {
	if err := ns.register(rt, "__clock_now", func() float64 {
		return float64(time.Now().UnixNano()) / 1e9
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__clock_since", func() float64 {
		return time.Since(ns.opts.Start).Seconds()
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__clock_sleep", func(seconds float64) (bool, error) {
		d := duration(seconds, time.Second)
		if !ns.sleep(d) {
			if ns.overran {
				return false, fmt.Errorf("TimeoutError: sleep outlasts the time limit")
			}
			return false, fmt.Errorf("Error: sleep interrupted")
		}
		return true, nil
	}); err != nil {
		return err
	}
	return rt.Eval(clockJS)
}
