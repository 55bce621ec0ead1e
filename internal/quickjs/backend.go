// Package quickjs runs sandboxed scripts on the QuickJS engine
// (modernc.org/quickjs, a pure-Go transpilation of the C interpreter).
package quickjs

import (
	"fmt"

	"github.com/cryguy/sandbox/internal/core"
	"modernc.org/quickjs"
)

// Backend creates QuickJS runtimes. The zero value is ready to use.
type Backend struct{}

var _ core.Backend = Backend{}

// New returns the QuickJS backend.
func New() Backend { return Backend{} }

// Name implements core.Backend.
func (Backend) Name() string { return "quickjs" }

// NewRuntime creates a fresh VM whose heap is capped at memoryLimit bytes
// (0 means no engine-side cap). The VM must be used and closed on the
// calling goroutine's OS thread.
func (Backend) NewRuntime(memoryLimit uint64) (core.JSRuntime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if memoryLimit > 0 {
		vm.SetMemoryLimit(uintptr(memoryLimit))
	}

	rt := &qjsRuntime{vm: vm}
	if err := rt.initBinaryTransfer(); err != nil {
		vm.Close()
		return nil, fmt.Errorf("binary transfer setup: %w", err)
	}
	return rt, nil
}
