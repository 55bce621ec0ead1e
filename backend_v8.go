//go:build v8

package sandbox

import (
	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/v8engine"
)

func newBackend() core.Backend {
	return v8engine.New()
}
