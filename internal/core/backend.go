package core

// Backend is the interface that engine implementations (QuickJS, V8) must
// satisfy. The root sandbox.Sandbox picks one based on build tags.
type Backend interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// NewRuntime creates a fresh, empty runtime. A non-zero memoryLimit caps
	// the engine's own heap. The caller owns the runtime and must Close it.
	NewRuntime(memoryLimit uint64) (JSRuntime, error)
}
