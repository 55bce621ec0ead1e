package core

import "time"

// Defaults applied by Config.WithDefaults when a field is left at zero.
const (
	DefaultTimeout          = 5 * time.Second
	DefaultMemoryCeiling    = 1 << 28 // 256 MiB
	DefaultPollInterval     = 50 * time.Millisecond
	DefaultMaxOutputBytes   = 1 << 20
	DefaultMaxSurfacePixels = 4096 * 4096
	DefaultMaxIterItems     = 1_000_000
	DefaultMaxTimers        = 1000
	DefaultInlineLimit      = 2000
)

// Config holds runtime configuration for the sandbox.
type Config struct {
	Timeout          time.Duration // wall-clock limit when a request sets none
	MemoryCeiling    uint64        // process memory ceiling in bytes when a request sets none
	PollInterval     time.Duration // resource monitor poll period
	MaxOutputBytes   int           // cap on text written through print/console
	MaxSurfacePixels int           // cap on width*height of a single gfx surface
	MaxIterItems     int           // cap on the size of itertools results
	MaxTimers        int           // cap on concurrently scheduled timers per run
	InlineLimit      int           // diagnostic bodies above this many characters become artifacts
	SkipReclaim      bool          // disable the GC pass after every run
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MemoryCeiling == 0 {
		c.MemoryCeiling = DefaultMemoryCeiling
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if c.MaxSurfacePixels <= 0 {
		c.MaxSurfacePixels = DefaultMaxSurfacePixels
	}
	if c.MaxIterItems <= 0 {
		c.MaxIterItems = DefaultMaxIterItems
	}
	if c.MaxTimers <= 0 {
		c.MaxTimers = DefaultMaxTimers
	}
	if c.InlineLimit <= 0 {
		c.InlineLimit = DefaultInlineLimit
	}
	return c
}
