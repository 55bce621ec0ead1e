package core

// JSRuntime abstracts the JavaScript engine (V8 or QuickJS) behind a
// common interface used by the namespace installer, the worker harness
// and the event loop.
//
// A JSRuntime is single-threaded: every method except Interrupt must be
// called from the goroutine that created it.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// The function's Go types are automatically marshaled to/from JS types.
	// A non-nil error return is thrown into JS. An error text of the form
	// "RangeError: message" selects the thrown constructor; anything else
	// becomes a plain Error.
	RegisterFunc(name string, fn any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	RunMicrotasks()

	// Interrupt forces the currently running script to unwind. It is safe
	// to call from any goroutine and at any time, including after Close.
	Interrupt()

	// Close releases the engine. The runtime is unusable afterwards.
	Close()
}

// BinaryTransferer is an optional interface that JSRuntime implementations
// can provide for efficient binary data transfer between Go and JS.
type BinaryTransferer interface {
	// ReadBinaryFromJS reads binary data from a JS ArrayBuffer stored at
	// the given global variable name, deletes the global and returns the
	// bytes.
	ReadBinaryFromJS(globalName string) ([]byte, error)

	// WriteBinaryToJS writes Go bytes into a JS ArrayBuffer at the given
	// global variable name.
	WriteBinaryToJS(globalName string, data []byte) error
}
