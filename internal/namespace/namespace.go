// Package namespace builds the capability surface a script runs against.
//
// A Namespace is created per run by Build and installed into exactly one
// fresh runtime. Host state behind the capabilities (text output, surfaces,
// PRNG, timers, compiled regular expressions) lives on the Namespace and
// is discarded with it.
package namespace

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/cryguy/sandbox/internal/core"
	"github.com/cryguy/sandbox/internal/eventloop"
	"github.com/cryguy/sandbox/internal/gfx"
)

// Options configures one namespace.
type Options struct {
	Limits   core.Config     // output, surface, iteration and timer caps
	Start    time.Time       // run start; zero means time.Now()
	Deadline time.Time       // hard end of the run; zero means Start + Limits.Timeout
	Kill     <-chan struct{} // closed when the run is preempted
	Seed     uint64          // PRNG seed; 0 picks a random one
	Logger   *slog.Logger
}

// Namespace is the per-run set of installed capabilities and their state.
type Namespace struct {
	opts   Options
	logger *slog.Logger

	out      *Output
	surfaces *gfx.Registry
	rng      *rand.Rand
	loop     *eventloop.EventLoop
	regexps  map[regexKey]*regexp2.Regexp

	binary        core.BinaryTransferer // nil when the runtime has none
	importAttempt string
	imported      bool
	overran       bool
}

// Build creates the host state for a run. It touches no runtime.
func Build(opts Options) *Namespace {
	opts.Limits = opts.Limits.WithDefaults()
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	if opts.Deadline.IsZero() {
		opts.Deadline = opts.Start.Add(opts.Limits.Timeout)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	surfaces := gfx.NewRegistry(opts.Limits.MaxSurfacePixels)
	return &Namespace{
		opts:     opts,
		logger:   opts.Logger,
		out:      newOutput(opts.Limits.MaxOutputBytes, surfaces),
		surfaces: surfaces,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		loop:     eventloop.New(opts.Limits.MaxTimers),
		regexps:  make(map[regexKey]*regexp2.Regexp),
	}
}

type setupFunc func(ns *Namespace, rt core.JSRuntime) error

// setupFns install the curated modules, in order. Lockdown is not among
// them: the harness triggers it once the user body has been compiled.
var setupFns = []setupFunc{
	setupOutput,
	setupMath,
	setupString,
	setupItertools,
	setupRandom,
	setupRegex,
	setupClock,
	setupTimers,
	setupGfx,
	setupEncoding,
	setupImports,
	setupLockdown,
}

// Install registers every capability in rt. rt must be fresh.
func (ns *Namespace) Install(rt core.JSRuntime) error {
	if bt, ok := rt.(core.BinaryTransferer); ok {
		ns.binary = bt
	}
	for _, setup := range setupFns {
		if err := setup(ns, rt); err != nil {
			return fmt.Errorf("installing namespace: %w", err)
		}
	}
	return nil
}

// Output returns the run's output sink.
func (ns *Namespace) Output() *Output { return ns.out }

// Loop returns the run's timer loop.
func (ns *Namespace) Loop() *eventloop.EventLoop { return ns.loop }

// Deadline returns the hard end of the run.
func (ns *Namespace) Deadline() time.Time { return ns.opts.Deadline }

// Overran reports whether a sleep was cut short by the deadline. The
// script may catch the resulting error; the run still counts as timed out.
func (ns *Namespace) Overran() bool { return ns.overran }

// ImportAttempt reports the module name of the first require() call.
func (ns *Namespace) ImportAttempt() (string, bool) {
	return ns.importAttempt, ns.imported
}

var errorType = reflect.TypeFor[error]()

// register exposes fn to JS as a global named name. A panic inside fn is
// logged and, when fn returns an error, turned into an InternalError for
// the script instead of unwinding through the engine.
func (ns *Namespace) register(rt core.JSRuntime, name string, fn any) error {
	v := reflect.ValueOf(fn)
	t := v.Type()
	wrapped := reflect.MakeFunc(t, func(args []reflect.Value) (out []reflect.Value) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			ns.logger.Error("namespace: host function panicked",
				slog.String("func", name), slog.Any("panic", p))
			out = make([]reflect.Value, t.NumOut())
			for i := range out {
				out[i] = reflect.Zero(t.Out(i))
			}
			if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
				err := fmt.Errorf("InternalError: %s failed", name)
				out[n-1] = reflect.ValueOf(&err).Elem()
			}
		}()
		return v.Call(args)
	})
	return rt.RegisterFunc(name, wrapped.Interface())
}
