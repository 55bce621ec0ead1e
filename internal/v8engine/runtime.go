//go:build v8

package v8engine

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/cryguy/sandbox/internal/core"
	v8 "github.com/tommie/v8go"
)

// v8Runtime implements core.JSRuntime for the V8 engine.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context

	// Helpers captured before the namespace lockdown removes the globals
	// they depend on.
	mkErr    *v8.Function // (message) -> Error instance
	newSAB   *v8.Function // (size) -> SharedArrayBuffer
	storeSAB *v8.Function // (name, sab) -> globalThis[name] = ArrayBuffer copy
	takeSAB  *v8.Function // (name) -> SharedArrayBuffer copy of globalThis[name]

	closeMu sync.Mutex
	closed  bool
}

var _ core.JSRuntime = (*v8Runtime)(nil)
var _ core.BinaryTransferer = (*v8Runtime)(nil)

const helpersJS = `(function(S, AB, U8, E, TE, RE, SE) {
	var ctors = { TypeError: TE, RangeError: RE, SyntaxError: SE, Error: E };
	return [
		function(msg) {
			msg = String(msg);
			var i = msg.indexOf(': ');
			var name = i > 0 ? msg.slice(0, i) : '';
			if (ctors[name]) return new ctors[name](msg.slice(i + 2));
			if (!/^[A-Z]\w*Error$/.test(name)) return new E(msg);
			var e = new E(msg.slice(i + 2));
			e.name = name;
			return e;
		},
		function(n) { return new S(n); },
		function(name, sab) {
			var buf = new AB(sab.byteLength);
			new U8(buf).set(new U8(sab));
			globalThis[name] = buf;
		},
		function(name) {
			var buf = globalThis[name];
			delete globalThis[name];
			var n = buf ? buf.byteLength : 0;
			var sab = new S(n);
			if (n) new U8(sab).set(new U8(buf.buffer || buf, buf.byteOffset || 0, n));
			return sab;
		}
	];
})(SharedArrayBuffer, ArrayBuffer, Uint8Array, Error, TypeError, RangeError, SyntaxError)`

func (r *v8Runtime) initHelpers() error {
	val, err := r.ctx.RunScript(helpersJS, "helpers.js")
	if err != nil {
		return err
	}
	obj, err := val.AsObject()
	if err != nil {
		return err
	}
	fns := make([]*v8.Function, 4)
	for i := range fns {
		v, err := obj.GetIdx(uint32(i))
		if err != nil {
			return err
		}
		if fns[i], err = v.AsFunction(); err != nil {
			return err
		}
	}
	r.mkErr, r.newSAB, r.storeSAB, r.takeSAB = fns[0], fns[1], fns[2], fns[3]
	return nil
}

// Eval evaluates JavaScript and discards the result.
func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "eval.js")
	return err
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "eval_string.js")
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", nil
	}
	return val.String(), nil
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Uses reflection to inspect the Go function's signature and creates a
// V8 FunctionTemplate that marshals arguments and return values.
//
// Supported Go function signatures:
//   - func(args...): no return, JS function returns undefined
//   - func(args...) T: single return, JS function returns T
//   - func(args...) (T, error): on success returns T, on error throws
//
// A "RangeError: " or "TypeError: " prefix on the error text selects the
// thrown constructor.
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("RegisterFunc: expected function, got %T", fn)
	}

	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()

		goArgs := make([]reflect.Value, fnType.NumIn())
		for i := 0; i < fnType.NumIn(); i++ {
			if i < len(args) {
				goArgs[i] = jsToGoArg(args[i], fnType.In(i))
			} else {
				goArgs[i] = reflect.Zero(fnType.In(i))
			}
		}

		results := fnVal.Call(goArgs)

		switch fnType.NumOut() {
		case 0:
			return nil
		case 1:
			return goToJSValue(r.iso, results[0])
		case 2:
			errVal := results[1]
			if !errVal.IsNil() {
				r.throw(errVal.Interface().(error).Error())
				return nil
			}
			return goToJSValue(r.iso, results[0])
		default:
			return nil
		}
	})

	fnObj := tmpl.GetFunction(r.ctx)

	return r.ctx.Global().Set(name, fnObj)
}

func (r *v8Runtime) throw(msg string) {
	jsMsg, _ := v8.NewValue(r.iso, msg)
	if errObj, err := r.mkErr.Call(v8.Undefined(r.iso), jsMsg); err == nil {
		r.iso.ThrowException(errObj)
		return
	}
	r.iso.ThrowException(jsMsg)
}

// RunMicrotasks pumps the V8 microtask queue.
func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates the running script. Safe to call from any goroutine.
func (r *v8Runtime) Interrupt() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.iso.TerminateExecution()
}

// Close disposes the context and the isolate.
func (r *v8Runtime) Close() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.ctx.Close()
	r.iso.Dispose()
}

// ReadBinaryFromJS copies the ArrayBuffer (or typed array) stored at the
// given global into Go bytes and deletes the global.
func (r *v8Runtime) ReadBinaryFromJS(globalName string) ([]byte, error) {
	jsName, err := v8.NewValue(r.iso, globalName)
	if err != nil {
		return nil, err
	}
	sabVal, err := r.takeSAB.Call(v8.Undefined(r.iso), jsName)
	if err != nil {
		return nil, fmt.Errorf("retrieving %s: %w", globalName, err)
	}

	data, release, err := sabVal.SharedArrayBufferGetContents()
	if err != nil {
		return nil, fmt.Errorf("reading SharedArrayBuffer %s: %w", globalName, err)
	}
	defer release()
	if len(data) == 0 {
		return nil, nil
	}
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// WriteBinaryToJS writes Go bytes into a JS ArrayBuffer via a SharedArrayBuffer bridge.
func (r *v8Runtime) WriteBinaryToJS(globalName string, data []byte) error {
	size, err := v8.NewValue(r.iso, int32(len(data)))
	if err != nil {
		return err
	}
	sabVal, err := r.newSAB.Call(v8.Undefined(r.iso), size)
	if err != nil {
		return fmt.Errorf("allocating SharedArrayBuffer: %w", err)
	}

	if len(data) > 0 {
		sabBytes, release, err := sabVal.SharedArrayBufferGetContents()
		if err != nil {
			return fmt.Errorf("getting SharedArrayBuffer contents: %w", err)
		}
		copy(sabBytes, data)
		release()
	}

	jsName, err := v8.NewValue(r.iso, globalName)
	if err != nil {
		return err
	}
	if _, err := r.storeSAB.Call(v8.Undefined(r.iso), jsName, sabVal); err != nil {
		return fmt.Errorf("copying SharedArrayBuffer to ArrayBuffer: %w", err)
	}
	return nil
}

// jsToGoArg converts a V8 value to a Go reflect.Value of the expected type.
func jsToGoArg(val *v8.Value, targetType reflect.Type) reflect.Value {
	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(val.String())
	case reflect.Int:
		return reflect.ValueOf(int(val.Integer()))
	case reflect.Int64:
		return reflect.ValueOf(val.Integer())
	case reflect.Float64:
		return reflect.ValueOf(val.Number())
	case reflect.Bool:
		return reflect.ValueOf(val.Boolean())
	default:
		return reflect.Zero(targetType)
	}
}

// goToJSValue converts a Go reflect.Value to a V8 value.
func goToJSValue(iso *v8.Isolate, val reflect.Value) *v8.Value {
	if !val.IsValid() {
		return nil
	}
	switch val.Kind() {
	case reflect.String:
		v, _ := v8.NewValue(iso, val.String())
		return v
	case reflect.Int, reflect.Int64, reflect.Int32:
		v, _ := v8.NewValue(iso, float64(val.Int()))
		return v
	case reflect.Float64, reflect.Float32:
		v, _ := v8.NewValue(iso, val.Float())
		return v
	case reflect.Bool:
		v, _ := v8.NewValue(iso, val.Bool())
		return v
	default:
		return nil
	}
}
