package worker

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/sandbox/internal/namespace"
)

// preambleLines is the number of hidden lines placed before the script
// body. It is far larger than any trusted code evaluated in the runtime,
// so a stack frame at or beyond it can only belong to the body.
const preambleLines = 10000

// runHook is the one-shot global that runs the compiled body.
const runHook = "__sandbox_run"

// harnessJS compiles the body with the Function constructor captured
// before lockdown, measures where line 1 of the body lands with a marker
// compiled the same way, applies the lockdown and leaves two hooks behind:
// runHook and the wrapped timer fire hook. Both return "" on success or a
// JSON description of the thrown value.
const harnessJS = `
(function(Fn, source, preamble, lockdown, fireName, runName) {
	var stringify = JSON.stringify, define = Object.defineProperty, create = Object.create, Str = String;
	var Internal = typeof InternalError === 'function' ? InternalError : null;
	var pad = '"use strict";' + '\n'.repeat(preamble);
	var describe = function(e) {
		var d = create(null);
		d.name = 'Error';
		d.message = '';
		d.stack = '';
		d.internal = false;
		try {
			d.internal = Internal !== null && e instanceof Internal;
			if (e !== null && (typeof e === 'object' || typeof e === 'function')) {
				d.name = Str(e.name);
				d.message = Str(e.message);
				d.stack = Str(e.stack);
			} else {
				d.message = Str(e);
			}
		} catch (_) {}
		return d;
	};
	var result = create(null);
	try {
		Fn(pad + 'throw new Error("marker");')();
	} catch (e) {
		result.marker = Str(e.stack);
	}
	var body;
	try {
		body = Fn(pad + source);
	} catch (e) {
		result.compile = describe(e);
	}
	globalThis[lockdown]();
	if (body) {
		define(globalThis, runName, {
			value: function() {
				delete globalThis[runName];
				try { body.call(undefined); return ''; } catch (e) { return stringify(describe(e)); }
			},
			writable: false, enumerable: false, configurable: true
		});
		var fire = globalThis[fireName];
		define(globalThis, fireName, {
			value: function(id) {
				try { fire(id); return ''; } catch (e) { return stringify(describe(e)); }
			},
			writable: false, enumerable: false, configurable: false
		});
	}
	return stringify(result);
})(Function, %s, %d, %q, %q, %q)
`

// thrown describes a value thrown by script code. Internal is set for
// instances of the engine's InternalError class.
type thrown struct {
	Name     string `json:"name"`
	Message  string `json:"message"`
	Stack    string `json:"stack"`
	Internal bool   `json:"internal"`
}

type harnessResult struct {
	Marker  string  `json:"marker"`
	Compile *thrown `json:"compile"`
}

func harnessScript(source string) (string, error) {
	src, err := json.Marshal(source)
	if err != nil {
		return "", fmt.Errorf("encoding source: %w", err)
	}
	return fmt.Sprintf(harnessJS, src, preambleLines,
		namespace.LockdownHook, namespace.FireHook, runHook), nil
}

func parseHarness(s string) (harnessResult, error) {
	var hr harnessResult
	if err := json.Unmarshal([]byte(s), &hr); err != nil {
		return hr, fmt.Errorf("decoding harness result: %w", err)
	}
	return hr, nil
}

func parseThrown(s string) (*thrown, error) {
	if s == "" {
		return nil, nil
	}
	var t thrown
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("decoding thrown value: %w", err)
	}
	return &t, nil
}
