//go:build !v8

package sandbox

import (
	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/quickjs"
)

func newBackend() core.Backend {
	return quickjs.New()
}
