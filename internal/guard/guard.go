// Package guard rejects scripts whose text contains tokens commonly used to
// reach the engine's object model behind the sandbox's back.
//
// Matching is plain substring search: no tokenising, no normalisation. It
// is a cheap first line, not a proof; the namespace lockdown is what
// actually removes capabilities.
package guard

import (
	"strings"

	"github.com/cryguy/sandbox/internal/core"
)

// Patterns is the fixed list of rejected tokens, checked in order.
var Patterns = []string{
	"__proto__",
	"__defineGetter__",
	"__defineSetter__",
	"__lookupGetter__",
	"__lookupSetter__",
	"getPrototypeOf",
	"setPrototypeOf",
	"getOwnPropertyDescriptor",
	"defineProperty",
	".constructor",
	`["constructor"]`,
	`['constructor']`,
}

// Match returns the first pattern found in source, or "" when none is.
func Match(source string) string {
	for _, p := range Patterns {
		if strings.Contains(source, p) {
			return p
		}
	}
	return ""
}

// Scan returns a SuspiciousPattern fault naming the first matched token,
// or nil if the source is clean.
func Scan(source string) error {
	p := Match(source)
	if p == "" {
		return nil
	}
	f := core.NewFault(core.FaultSuspiciousPattern, "script contains the forbidden token %q", p)
	f.Name = p
	return f
}
