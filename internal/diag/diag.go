// Package diag turns faults into short user-facing reports.
//
// Reports never contain host paths or engine frames: only the fault's own
// message and, for code faults, the caller's source line.
package diag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cryguy/sandbox/internal/core"
)

// ArtifactName is the file name used for oversized bodies.
const ArtifactName = "diagnostics.txt"

// Options configures Translate.
type Options struct {
	InlineLimit int // body length in characters above which it becomes an artifact
}

const importHint = "Imports are not available. The modules math, random, re, time, " +
	"string, itertools and gfx are already loaded; run the script again without " +
	"import statements or require calls."

// Translate renders f as a report.
func Translate(f *core.Fault, opts Options) core.Report {
	if opts.InlineLimit <= 0 {
		opts.InlineLimit = core.DefaultInlineLimit
	}
	r := core.Report{Line: f.Line, Title: Title(f)}
	if f.Line > 0 && f.Excerpt != "" {
		r.Excerpt = Caret(f.Excerpt, f.Column)
	}

	switch f.Kind {
	case core.FaultImport:
		r.Body = importHint
	case core.FaultSyntax, core.FaultRuntime:
		r.Body = f.Message
		if r.Excerpt != "" {
			r.Body = r.Excerpt + "\n" + f.Message
		}
	default:
		r.Body = capitalize(f.Message)
	}

	if utf8.RuneCountInString(r.Body) > opts.InlineLimit {
		r.Artifact = &core.Artifact{
			Name:        ArtifactName,
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(r.Title + "\n" + r.Body + "\n"),
		}
		r.Body = fmt.Sprintf("The full report is too long to show here; see %s.", ArtifactName)
	}
	return r
}

// Title returns the one-line heading for f.
func Title(f *core.Fault) string {
	switch f.Kind {
	case core.FaultSuspiciousPattern:
		return "Suspicious pattern"
	case core.FaultSyntax:
		return withLine("SyntaxError", f.Line)
	case core.FaultImport:
		return "Imports are not supported"
	case core.FaultRuntime:
		name := f.Name
		if name == "" {
			name = "Error"
		}
		return withLine(name, f.Line)
	case core.FaultTimeout:
		return "Timed out"
	case core.FaultMemory:
		return "Memory limit exceeded"
	case core.FaultCancelled:
		return "Cancelled"
	default:
		return "Error"
	}
}

func withLine(name string, line int) string {
	if line <= 0 {
		return name
	}
	return fmt.Sprintf("%s at line %d", name, line)
}

// Caret returns line followed by a marker line pointing at the 0-based
// byte offset col. Tabs before the column are kept so the marker lines up.
// A negative col yields line alone.
func Caret(line string, col int) string {
	line = strings.TrimRight(line, "\r\n")
	if col < 0 {
		return line
	}
	col = min(col, len(line))
	var pad strings.Builder
	for _, r := range line[:col] {
		if r == '\t' {
			pad.WriteByte('\t')
		} else {
			pad.WriteByte(' ')
		}
	}
	return line + "\n" + pad.String() + "^"
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 || r < 'a' || r > 'z' {
		return s
	}
	return strings.ToUpper(s[:n]) + s[n:]
}
