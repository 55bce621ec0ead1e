package diag

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

var timeUnits = []struct {
	scale float64
	unit  string
}{
	{1, "s"},
	{1e-3, "ms"},
	{1e-6, "μs"},
	{1e-9, "ns"},
}

// FormatDuration renders d in the largest unit it fills, with four
// decimals: "1.5000 s", "12.0000 ms".
func FormatDuration(d time.Duration) string {
	s := d.Seconds()
	for _, u := range timeUnits {
		if s >= u.scale {
			return fmt.Sprintf("%.4f %s", s/u.scale, u.unit)
		}
	}
	return "very fast"
}

// FormatBytes renders n with binary prefixes, e.g. "256 MiB".
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}
