package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cryguy/sandbox"
)

func TestReadSource(t *testing.T) {
	got, err := readSource(strings.NewReader("print(1)"), nil)
	if err != nil || got != "print(1)" {
		t.Fatalf("stdin: %q, %v", got, err)
	}
	path := filepath.Join(t.TempDir(), "s.js")
	if err := os.WriteFile(path, []byte("print(2)"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = readSource(nil, []string{path})
	if err != nil || got != "print(2)" {
		t.Fatalf("file: %q, %v", got, err)
	}
}

func TestPrintOutcome(t *testing.T) {
	var stdout, stderr bytes.Buffer
	ok := &sandbox.Outcome{Success: &sandbox.Success{Text: "hi\n", Duration: 1500}}
	if err := printOutcome(&stdout, &stderr, ok); err != nil {
		t.Fatalf("success: %v", err)
	}
	if stdout.String() != "hi\n" || !strings.Contains(stderr.String(), "1.5000 μs") {
		t.Fatalf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}

	stdout.Reset()
	stderr.Reset()
	fail := &sandbox.Outcome{Failure: &sandbox.Failure{
		Fault:  &sandbox.Fault{Kind: sandbox.FaultTimeout},
		Report: sandbox.Report{Title: "Timed out", Body: "Script ran longer than 5s"},
	}}
	if err := printOutcome(&stdout, &stderr, fail); !errors.Is(err, errScriptFailed) {
		t.Fatalf("failure: %v", err)
	}
	if stdout.Len() != 0 || !strings.HasPrefix(stderr.String(), "Timed out\n") {
		t.Fatalf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}
