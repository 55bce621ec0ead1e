package diag

import (
	"strings"
	"testing"
	"time"

	"github.com/cryguy/sandbox/internal/core"
)

func TestTitles(t *testing.T) {
	for _, c := range []struct {
		fault *core.Fault
		want  string
	}{
		{&core.Fault{Kind: core.FaultSuspiciousPattern}, "Suspicious pattern"},
		{&core.Fault{Kind: core.FaultSyntax, Line: 3}, "SyntaxError at line 3"},
		{&core.Fault{Kind: core.FaultSyntax}, "SyntaxError"},
		{&core.Fault{Kind: core.FaultImport}, "Imports are not supported"},
		{&core.Fault{Kind: core.FaultRuntime, Name: "TypeError", Line: 2}, "TypeError at line 2"},
		{&core.Fault{Kind: core.FaultRuntime}, "Error"},
		{&core.Fault{Kind: core.FaultTimeout}, "Timed out"},
		{&core.Fault{Kind: core.FaultMemory}, "Memory limit exceeded"},
		{&core.Fault{Kind: core.FaultCancelled}, "Cancelled"},
	} {
		if got := Title(c.fault); got != c.want {
			t.Errorf("Title(%v) = %q, want %q", c.fault.Kind, got, c.want)
		}
	}
}

func TestCaret(t *testing.T) {
	for _, c := range []struct {
		line string
		col  int
		want string
	}{
		{"let = ;", 4, "let = ;\n    ^"},
		{"\tx(;", 3, "\tx(;\n\t  ^"},
		{"ab", 10, "ab\n  ^"},
		{"ab\r", -1, "ab"},
	} {
		if got := Caret(c.line, c.col); got != c.want {
			t.Errorf("Caret(%q, %d) = %q, want %q", c.line, c.col, got, c.want)
		}
	}
}

func TestSyntaxReport(t *testing.T) {
	f := &core.Fault{Kind: core.FaultSyntax, Name: "SyntaxError", Message: `Expected identifier but found "="`,
		Line: 2, Column: 4, Excerpt: "let = ;"}
	r := Translate(f, Options{})
	if r.Line != 2 || r.Excerpt != "let = ;\n    ^" {
		t.Fatalf("Report = %+v", r)
	}
	if !strings.HasPrefix(r.Body, r.Excerpt+"\n") || !strings.HasSuffix(r.Body, f.Message) {
		t.Fatalf("Body = %q", r.Body)
	}
	if r.Artifact != nil {
		t.Fatal("unexpected artifact")
	}
}

func TestImportReportIsFriendly(t *testing.T) {
	r := Translate(&core.Fault{Kind: core.FaultImport, Message: `import of "fs"`, Column: -1}, Options{})
	if !strings.Contains(r.Body, "already loaded") {
		t.Fatalf("Body = %q", r.Body)
	}
}

func TestTimeoutBodyIsCapitalized(t *testing.T) {
	r := Translate(core.NewFault(core.FaultTimeout, "script ran longer than 5s"), Options{})
	if r.Body != "Script ran longer than 5s" {
		t.Fatalf("Body = %q", r.Body)
	}
}

func TestOversizedBodyBecomesArtifact(t *testing.T) {
	msg := strings.Repeat("x", 50)
	f := &core.Fault{Kind: core.FaultRuntime, Name: "Error", Message: msg, Column: -1}
	if r := Translate(f, Options{InlineLimit: 50}); r.Artifact != nil {
		t.Fatal("body at the limit became an artifact")
	}
	f.Message += "y"
	r := Translate(f, Options{InlineLimit: 50})
	if r.Artifact == nil {
		t.Fatal("no artifact for oversized body")
	}
	if r.Artifact.Name != ArtifactName || !strings.Contains(string(r.Artifact.Data), f.Message) {
		t.Fatalf("Artifact = %+v", r.Artifact)
	}
	if strings.Contains(r.Body, msg) {
		t.Fatalf("Body still inline: %q", r.Body)
	}
}

func TestFormatDuration(t *testing.T) {
	for _, c := range []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5000 s"},
		{12 * time.Millisecond, "12.0000 ms"},
		{3 * time.Microsecond, "3.0000 μs"},
		{7, "7.0000 ns"},
		{0, "very fast"},
	} {
		if got := FormatDuration(c.d); got != c.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(256 << 20); got != "256 MiB" {
		t.Fatalf("FormatBytes = %q", got)
	}
}
