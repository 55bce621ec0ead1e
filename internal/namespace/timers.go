package namespace

import (
	"time"

	"github.com/cryguy/sandbox/internal/core"
)

// FireHook is the global through which the host fires timer callbacks.
// It survives lockdown and is not enumerable.
const FireHook = "__sandbox_fire"

const timersJS = `
(function(register, clear) {
	var callbacks = new Map();
	var schedule = function(interval) {
		return function(fn, delay) {
			if (typeof fn !== 'function') throw new TypeError('callback must be a function');
			var args = Array.prototype.slice.call(arguments, 2);
			var id = register(Math.max(0, Number(delay) || 0), interval);
			callbacks.set(id, { fn: fn, args: args, interval: interval });
			return id;
		};
	};
	var cancel = function(id) {
		if (typeof id !== 'number') return;
		clear(id);
		callbacks.delete(id);
	};
	globalThis.setTimeout = schedule(false);
	globalThis.setInterval = schedule(true);
	globalThis.clearTimeout = cancel;
	globalThis.clearInterval = cancel;
	Object.defineProperty(globalThis, '` + FireHook + `', {
		value: function(id) {
			var entry = callbacks.get(id);
			if (!entry) return;
			if (!entry.interval) callbacks.delete(id);
			entry.fn.apply(undefined, entry.args);
		},
		writable: true, enumerable: false, configurable: true
	});
})(__timer_register, __timer_clear);
`

func setupTimers(ns *Namespace, rt core.JSRuntime) error {
	if err := ns.register(rt, "__timer_register", func(delayMS float64, interval bool) (int, error) {
		return ns.loop.RegisterTimer(duration(delayMS, time.Millisecond), interval)
	}); err != nil {
		return err
	}
	if err := ns.register(rt, "__timer_clear", func(id int) bool {
		ns.loop.ClearTimer(id)
		return true
	}); err != nil {
		return err
	}
	return rt.Eval(timersJS)
}
