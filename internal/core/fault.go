package core

import (
	"errors"
	"fmt"
)

// FaultKind tags the category of a sandbox failure.
type FaultKind int

const (
	FaultSuspiciousPattern FaultKind = iota + 1
	FaultSyntax
	FaultImport
	FaultRuntime
	FaultTimeout
	FaultMemory
	FaultCancelled
)

var faultKindNames = map[FaultKind]string{
	FaultSuspiciousPattern: "suspicious_pattern",
	FaultSyntax:            "syntax",
	FaultImport:            "import",
	FaultRuntime:           "runtime",
	FaultTimeout:           "timeout",
	FaultMemory:            "memory",
	FaultCancelled:         "cancelled",
}

// String returns the snake_case name used in logs, metrics and wire output.
func (k FaultKind) String() string {
	if s, ok := faultKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("fault(%d)", int(k))
}

// Fault describes why a script did not complete successfully. Line numbers
// always refer to the caller's source text, never to any hidden preamble.
type Fault struct {
	Kind    FaultKind
	Name    string // fault class for runtime faults, e.g. "TypeError"
	Message string
	Line    int    // 1-based; 0 when unknown
	Column  int    // 0-based byte offset into Excerpt; -1 when unknown
	Excerpt string // the offending source line, when known
}

// NewFault creates a fault with no position information.
func NewFault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Column: -1}
}

func (f *Fault) Error() string {
	switch {
	case f.Name != "" && f.Line > 0:
		return fmt.Sprintf("%s: %s at line %d: %s", f.Kind, f.Name, f.Line, f.Message)
	case f.Line > 0:
		return fmt.Sprintf("%s at line %d: %s", f.Kind, f.Line, f.Message)
	case f.Name != "":
		return fmt.Sprintf("%s: %s: %s", f.Kind, f.Name, f.Message)
	default:
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
}

// AsFault extracts a *Fault from err, if there is one.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
