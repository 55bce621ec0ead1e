package precheck

import (
	"testing"

	"github.com/cryguy/sandbox/internal/core"
)

func mustFault(t *testing.T, err error) *core.Fault {
	t.Helper()
	f, ok := core.AsFault(err)
	if !ok {
		t.Fatalf("expected *core.Fault, got %v", err)
	}
	return f
}

func TestCheckAcceptsPlainScript(t *testing.T) {
	src := "const xs = [1, 2, 3];\nprint(xs.map(x => x * 2).join(','));\n"
	if err := Check(src); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheckRejectsStaticImport(t *testing.T) {
	f := mustFault(t, Check("print(1);\nimport fs from 'fs';\n"))
	if f.Kind != core.FaultImport {
		t.Fatalf("kind = %v, want import", f.Kind)
	}
	if f.Line != 2 {
		t.Errorf("line = %d, want 2", f.Line)
	}
}

func TestCheckRejectsLiteralRequire(t *testing.T) {
	f := mustFault(t, Check("const os = require('os');"))
	if f.Kind != core.FaultImport {
		t.Fatalf("kind = %v, want import", f.Kind)
	}
}

func TestCheckRejectsDynamicImport(t *testing.T) {
	f := mustFault(t, Check("import('net').then(m => print(m));"))
	if f.Kind != core.FaultImport {
		t.Fatalf("kind = %v, want import", f.Kind)
	}
}

func TestCheckRejectsComputedImports(t *testing.T) {
	for _, src := range []string{
		"var m = 'fs';\nimport(m);",
		"var m = 'fs';\nrequire(m);",
	} {
		f := mustFault(t, Check(src))
		if f.Kind != core.FaultImport {
			t.Fatalf("%q: kind = %v, want import", src, f.Kind)
		}
		if f.Line != 2 {
			t.Errorf("%q: line = %d, want 2", src, f.Line)
		}
	}
}

func TestCheckReportsSyntaxPosition(t *testing.T) {
	f := mustFault(t, Check("print(1);\nlet = = 2;\n"))
	if f.Kind != core.FaultSyntax {
		t.Fatalf("kind = %v, want syntax", f.Kind)
	}
	if f.Line != 2 {
		t.Errorf("line = %d, want 2", f.Line)
	}
	if f.Excerpt != "let = = 2;" {
		t.Errorf("excerpt = %q", f.Excerpt)
	}
	if f.Column < 0 {
		t.Errorf("column = %d, want known", f.Column)
	}
}

func TestCheckDoesNotFlagImportInStrings(t *testing.T) {
	if err := Check(`print("import x from 'y'; require('z')");`); err != nil {
		t.Fatalf("Check: %v", err)
	}
}
