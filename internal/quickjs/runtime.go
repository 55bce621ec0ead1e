package quickjs

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cryguy/sandbox/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// qjsRuntime implements core.JSRuntime for the QuickJS engine.
type qjsRuntime struct {
	vm  *quickjs.VM
	tls *libc.TLS // cached from VM internals for direct C API access
	ctx uintptr   // cached JSContext pointer for direct C API access

	// closeMu guards closed against a concurrent Interrupt.
	closeMu sync.Mutex
	closed  bool

	// interrupted is sticky. The quickjs package clears its own interrupt
	// flag at the start of every evaluation, so an Interrupt landing
	// between two evaluations would otherwise be lost.
	interrupted atomic.Bool

	// fallback fields: used only when direct C API extraction fails
	// (e.g. if modernc.org/quickjs changes its unexported struct layout).
	useFallback   bool
	pendingBinary []byte // temp: data being written to JS
	pendingResult []byte // temp: data being read from JS
}

// btChunkSize is the raw byte chunk size for the fallback base64 transfer path.
const btChunkSize = 196608 // 192 KB raw → 256 KB base64

// errInterrupted is returned by evaluations started after Interrupt.
var errInterrupted = errors.New("interrupted")

var _ core.JSRuntime = (*qjsRuntime)(nil)
var _ core.BinaryTransferer = (*qjsRuntime)(nil)

// Eval evaluates JavaScript and discards the result.
func (r *qjsRuntime) Eval(js string) error {
	if r.interrupted.Load() {
		return errInterrupted
	}
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *qjsRuntime) EvalString(js string) (string, error) {
	if r.interrupted.Load() {
		return "", errInterrupted
	}
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

// RegisterFunc registers a Go function as a global JavaScript function.
// The quickjs package returns multi-value results as JS arrays and cannot
// return booleans, so the function is bound under a raw name through
// hostFunc and a JS wrapper unpacks [value, error], throwing on error.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	raw, kind, arity, err := hostFunc(fn)
	if err != nil {
		return err
	}
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, raw, false); err != nil {
		return err
	}
	return r.Eval(wrapperJS(name, rawName, kind, arity))
}

// RunMicrotasks pumps the QuickJS microtask queue.
func (r *qjsRuntime) RunMicrotasks() {
	if r.interrupted.Load() {
		return
	}
	executePendingJobs(r.vm)
}

// Interrupt asks the interpreter to abort the running script. QuickJS polls
// the interrupt flag from its bytecode loop, so even a tight loop unwinds.
func (r *qjsRuntime) Interrupt() {
	r.interrupted.Store(true)
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.vm.Interrupt()
}

// Close frees the VM and everything allocated inside it.
func (r *qjsRuntime) Close() {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.vm.Close()
}

// initBinaryTransfer extracts the VM's internal tls and cContext pointers
// for direct C API access. If extraction fails (e.g. struct layout changed
// in a new quickjs version), falls back to chunked base64 transfer which
// is slower but doesn't depend on internal layout.
func (r *qjsRuntime) initBinaryTransfer() error {
	if err := r.tryExtractVMInternals(); err != nil {
		r.useFallback = true
		return r.initFallbackTransfer()
	}

	// Smoke-test: try a trivial C API call to verify pointers are valid.
	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	lib.XFreeValue(r.tls, r.ctx, glob)

	return nil
}

// tryExtractVMInternals uses reflect+unsafe to cache the VM's tls and ctx.
func (r *qjsRuntime) tryExtractVMInternals() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic extracting VM internals: %v", p)
		}
	}()

	// cContext is the first field of VM (offset 0).
	r.ctx = *(*uintptr)(unsafe.Pointer(r.vm))
	if r.ctx == 0 {
		return fmt.Errorf("JSContext is nil")
	}

	_, tls, ok := extractRuntime(r.vm)
	if !ok {
		return fmt.Errorf("quickjs.VM runtime fields not found")
	}
	r.tls = tls
	return nil
}

// WriteBinaryToJS writes Go bytes into a JS ArrayBuffer at the given global
// variable name. Uses the QuickJS C API (JS_NewArrayBufferCopy) for a single
// memcpy. Falls back to chunked base64 if the C API pointers could not be
// extracted.
func (r *qjsRuntime) WriteBinaryToJS(globalName string, data []byte) error {
	if len(data) == 0 {
		return r.Eval(fmt.Sprintf("globalThis[%q] = new ArrayBuffer(0);", globalName))
	}
	if r.useFallback {
		return r.writeBinaryFallback(globalName, data)
	}

	bufPtr := uintptr(unsafe.Pointer(&data[0]))
	jsVal := lib.XJS_NewArrayBufferCopy(r.tls, r.ctx, bufPtr, lib.Tsize_t(len(data)))

	cName, err := libc.CString(globalName)
	if err != nil {
		lib.XFreeValue(r.tls, r.ctx, jsVal)
		return fmt.Errorf("allocating property name: %w", err)
	}

	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	// JS_SetPropertyStr consumes the val reference; do not free jsVal after.
	ret := lib.XJS_SetPropertyStr(r.tls, r.ctx, glob, cName, jsVal)
	lib.XFreeValue(r.tls, r.ctx, glob)
	libc.Xfree(r.tls, cName)

	if ret < 0 {
		return fmt.Errorf("setting global %q", globalName)
	}
	return nil
}

// ReadBinaryFromJS reads binary data from a JS ArrayBuffer at the given
// global variable name and returns it as Go bytes.
func (r *qjsRuntime) ReadBinaryFromJS(globalName string) ([]byte, error) {
	if r.useFallback {
		return r.readBinaryFallback(globalName)
	}

	cName, err := libc.CString(globalName)
	if err != nil {
		return nil, fmt.Errorf("allocating property name: %w", err)
	}

	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	jsVal := lib.XJS_GetPropertyStr(r.tls, r.ctx, glob, cName)
	lib.XFreeValue(r.tls, r.ctx, glob)
	libc.Xfree(r.tls, cName)

	var size lib.Tsize_t
	dataPtr := lib.XJS_GetArrayBuffer(r.tls, r.ctx, uintptr(unsafe.Pointer(&size)), jsVal)

	if dataPtr == 0 || size == 0 {
		lib.XFreeValue(r.tls, r.ctx, jsVal)
		_ = r.Eval(fmt.Sprintf("delete globalThis[%q];", globalName))
		return nil, nil
	}

	result := make([]byte, size)
	// dataPtr addresses libc-allocated (non-Go) memory.
	copy(result, unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(nil), dataPtr)), size))

	lib.XFreeValue(r.tls, r.ctx, jsVal)
	_ = r.Eval(fmt.Sprintf("delete globalThis[%q];", globalName))

	return result, nil
}

// --- Fallback: chunked base64 transfer (used if C API extraction fails) ---

// b64DecodeJS decodes base64 without relying on atob, which the sandbox
// namespace does not provide.
const b64DecodeJS = `function(s, view, off) {
	var A = 'ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/';
	var n = 0, bits = 0, acc = 0;
	for (var i = 0; i < s.length; i++) {
		var c = A.indexOf(s.charAt(i));
		if (c < 0) continue;
		acc = (acc << 6) | c;
		bits += 6;
		if (bits >= 8) {
			bits -= 8;
			view[off + n++] = (acc >> bits) & 255;
		}
	}
	return n;
}`

// initFallbackTransfer registers Go callback functions for chunked base64 transfer.
func (r *qjsRuntime) initFallbackTransfer() error {
	if err := r.RegisterFunc("__qjs_bt_chunk", func(offset int) (string, error) {
		if r.pendingBinary == nil {
			return "", fmt.Errorf("no pending binary data")
		}
		end := min(offset+btChunkSize, len(r.pendingBinary))
		return base64.StdEncoding.EncodeToString(r.pendingBinary[offset:end]), nil
	}); err != nil {
		return fmt.Errorf("registering __qjs_bt_chunk: %w", err)
	}

	if err := r.RegisterFunc("__qjs_bt_recv", func(b int) {
		r.pendingResult = append(r.pendingResult, byte(b))
	}); err != nil {
		return fmt.Errorf("registering __qjs_bt_recv: %w", err)
	}

	// Non-configurable so the namespace lockdown sweep cannot remove it.
	return r.Eval(`Object.defineProperty(globalThis, '__qjs_bt', {
			value: Object.freeze({ chunk: __qjs_bt_chunk, recv: __qjs_bt_recv }),
			writable: false, enumerable: false, configurable: false
		});
		delete globalThis.__qjs_bt_chunk; delete globalThis.__qjs_bt_recv;`)
}

func (r *qjsRuntime) writeBinaryFallback(globalName string, data []byte) error {
	r.pendingBinary = data
	defer func() { r.pendingBinary = nil }()

	return r.Eval(fmt.Sprintf(`(function(decode) {
		var sz = %d;
		var buf = new ArrayBuffer(sz);
		var view = new Uint8Array(buf);
		var off = 0;
		while (off < sz) {
			off += decode(__qjs_bt.chunk(off), view, off);
		}
		globalThis[%q] = buf;
	})(%s)`, len(data), globalName, b64DecodeJS))
}

func (r *qjsRuntime) readBinaryFallback(globalName string) ([]byte, error) {
	r.pendingResult = nil
	defer func() { r.pendingResult = nil }()

	if err := r.Eval(fmt.Sprintf(`(function() {
		var buf = globalThis[%q];
		delete globalThis[%q];
		if (!buf) return;
		var view = new Uint8Array(buf);
		for (var i = 0; i < view.length; i++) __qjs_bt.recv(view[i]);
	})()`, globalName, globalName)); err != nil {
		return nil, fmt.Errorf("reading binary from JS: %w", err)
	}
	return r.pendingResult, nil
}
