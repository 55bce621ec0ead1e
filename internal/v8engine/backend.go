//go:build v8

// Package v8engine runs sandboxed scripts on V8 through tommie/v8go.
package v8engine

import (
	"fmt"

	"github.com/cryguy/sandbox/internal/core"
	v8 "github.com/tommie/v8go"
)

// Backend creates V8 runtimes. The zero value is ready to use.
type Backend struct{}

var _ core.Backend = Backend{}

// New returns the V8 backend.
func New() Backend { return Backend{} }

// Name implements core.Backend.
func (Backend) Name() string { return "v8" }

// NewRuntime creates a fresh isolate and context. A non-zero memoryLimit
// caps the isolate heap.
func (Backend) NewRuntime(memoryLimit uint64) (core.JSRuntime, error) {
	var iso *v8.Isolate
	if memoryLimit > 0 {
		iso = v8.NewIsolate(v8.WithResourceConstraints(memoryLimit/2, memoryLimit))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)
	rt := &v8Runtime{iso: iso, ctx: ctx}
	if err := rt.initHelpers(); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, fmt.Errorf("installing runtime helpers: %w", err)
	}
	return rt, nil
}
