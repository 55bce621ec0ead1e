package monitor

import (
	"fmt"
	"runtime/metrics"

	"github.com/prometheus/procfs"
)

// Sampler reports the resident memory of the host process in bytes.
type Sampler interface {
	Sample() (uint64, error)
}

// SamplerFunc adapts a plain function to Sampler.
type SamplerFunc func() (uint64, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample() (uint64, error) { return f() }

// procSampler reads RSS from /proc/self/stat.
type procSampler struct {
	proc procfs.Proc
}

// NewProcSampler returns a Sampler backed by procfs. It fails where there
// is no /proc (non-Linux hosts).
func NewProcSampler() (Sampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	proc, err := fs.Self()
	if err != nil {
		return nil, fmt.Errorf("reading own process: %w", err)
	}
	s := procSampler{proc: proc}
	if _, err := s.Sample(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s procSampler) Sample() (uint64, error) {
	stat, err := s.proc.Stat()
	if err != nil {
		return 0, fmt.Errorf("reading process stat: %w", err)
	}
	return uint64(stat.ResidentMemory()), nil
}

// runtimeSampler approximates RSS from the Go runtime's own accounting:
// memory mapped by the runtime minus what it has returned to the OS. It
// does not see memory allocated outside the Go heap.
type runtimeSampler struct{}

var runtimeSamples = []string{
	"/memory/classes/total:bytes",
	"/memory/classes/heap/released:bytes",
}

func (runtimeSampler) Sample() (uint64, error) {
	samples := make([]metrics.Sample, len(runtimeSamples))
	for i, name := range runtimeSamples {
		samples[i].Name = name
	}
	metrics.Read(samples)
	for _, s := range samples {
		if s.Value.Kind() != metrics.KindUint64 {
			return 0, fmt.Errorf("runtime metric %s unavailable", s.Name)
		}
	}
	total, released := samples[0].Value.Uint64(), samples[1].Value.Uint64()
	return total - min(released, total), nil
}

// DefaultSampler returns the procfs sampler when available and the Go
// runtime approximation otherwise.
func DefaultSampler() Sampler {
	if s, err := NewProcSampler(); err == nil {
		return s
	}
	return runtimeSampler{}
}
