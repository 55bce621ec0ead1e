package namespace

import (
	"encoding/json"
	"fmt"

	"github.com/cryguy/sandbox/internal/core"
)

// LockdownHook is the one-shot global that applies the lockdown. The
// harness calls it after compiling the script body.
const LockdownHook = "__sandbox_lockdown"

// ImportErrorName is the error name require() throws.
const ImportErrorName = "ImportError"

// intrinsics are the engine globals scripts keep.
var intrinsics = []string{
	"Object", "Array", "Number", "Boolean", "String", "Symbol", "BigInt",
	"Math", "JSON", "Date", "RegExp", "Map", "Set", "WeakMap", "WeakSet", "Promise",
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError",
	"EvalError", "URIError", "AggregateError",
	"ArrayBuffer", "DataView", "Int8Array", "Uint8Array", "Uint8ClampedArray",
	"Int16Array", "Uint16Array", "Int32Array", "Uint32Array",
	"Float32Array", "Float64Array", "BigInt64Array", "BigUint64Array",
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"encodeURI", "encodeURIComponent", "decodeURI", "decodeURIComponent",
	"Infinity", "NaN", "undefined", "globalThis",
}

// modules are the curated globals installed by this package.
var modules = []string{
	"print", "console", "output", "math", "random", "re", "time", "string",
	"itertools", "gfx", "setTimeout", "setInterval", "clearTimeout",
	"clearInterval", "atob", "btoa", "require",
}

// AllowedGlobals returns every global name that survives lockdown.
func AllowedGlobals() []string {
	out := make([]string, 0, len(intrinsics)+len(modules)+1)
	out = append(out, intrinsics...)
	out = append(out, modules...)
	return append(out, FireHook)
}

const importsJS = `
(function(record, name) {
	var ImportError = function(message) {
		var e = new Error(message);
		e.name = name;
		return e;
	};
	globalThis.require = function(module) {
		module = String(module);
		record(module);
		throw ImportError("No module named '" + module + "'");
	};
})(__import_attempt, %q);
`

func setupImports(ns *Namespace, rt core.JSRuntime) error {
	if err := ns.register(rt, "__import_attempt", func(module string) bool {
		if !ns.imported {
			ns.imported = true
			ns.importAttempt = module
		}
		return true
	}); err != nil {
		return err
	}
	return rt.Eval(fmt.Sprintf(importsJS, ImportErrorName))
}

// lockdownJS removes every global not on the allow-list and poisons the
// constructor slot of every function prototype so that no function value
// leads back to a code-evaluating constructor.
const lockdownJS = `
(function(allowed) {
	var keep = Object.create(null);
	for (var i = 0; i < allowed.length; i++) keep[allowed[i]] = true;
	var getProto = Object.getPrototypeOf, define = Object.defineProperty, names = Object.getOwnPropertyNames;
	define(globalThis, '%s', {
		value: function() {
			var poison = function() { throw new TypeError('code generation is disabled'); };
			var protos = [
				Function.prototype,
				getProto(async function() {}),
				getProto(function*() {}),
				getProto(async function*() {})
			];
			for (var i = 0; i < protos.length; i++) {
				define(protos[i], 'constructor', {
					value: poison, writable: false, enumerable: false, configurable: false
				});
			}
			var own = names(globalThis);
			for (var j = 0; j < own.length; j++) {
				if (keep[own[j]]) continue;
				try { delete globalThis[own[j]]; } catch (e) {}
			}
			var syms = Object.getOwnPropertySymbols(globalThis);
			for (var k = 0; k < syms.length; k++) {
				try { delete globalThis[syms[k]]; } catch (e) {}
			}
		},
		writable: false, enumerable: false, configurable: true
	});
})(%s);
`

func setupLockdown(_ *Namespace, rt core.JSRuntime) error {
	allowed, err := json.Marshal(AllowedGlobals())
	if err != nil {
		return err
	}
	return rt.Eval(fmt.Sprintf(lockdownJS, LockdownHook, allowed))
}
