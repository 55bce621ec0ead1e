package quickjs

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cryguy/sandbox/internal/core"
)

func newTestRuntime(t *testing.T) core.JSRuntime {
	t.Helper()
	rt, err := New().NewRuntime(0)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestEvalString(t *testing.T) {
	rt := newTestRuntime(t)
	got, err := rt.EvalString("'a' + (1 + 1)")
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if got != "a2" {
		t.Fatalf("got %q", got)
	}
}

func TestRegisterFuncErrorConstructors(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterFunc("fail", func(msg string) (bool, error) {
		return false, errors.New(msg)
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	for _, c := range []struct{ msg, want string }{
		{"RangeError: too big", "RangeError|too big"},
		{"TypeError: wrong", "TypeError|wrong"},
		{"InvalidCharacterError: bad", "InvalidCharacterError|bad"},
		{"plain failure", "Error|plain failure"},
	} {
		got, err := rt.EvalString(`(function() {
			try { fail(` + "'" + c.msg + "'" + `); return 'no throw'; }
			catch (e) { return e.name + '|' + e.message; }
		})()`)
		if err != nil {
			t.Fatalf("EvalString: %v", err)
		}
		if got != c.want {
			t.Errorf("fail(%q) threw %q, want %q", c.msg, got, c.want)
		}
	}
}

func TestRegisterFuncSuccessUnwraps(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterFunc("double", func(n int) (int, error) { return n * 2, nil }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	got, err := rt.EvalString("String(double(21))")
	if err != nil || got != "42" {
		t.Fatalf("double(21) = %q, %v", got, err)
	}
	if got, _ := rt.EvalString("typeof __raw_double"); got != "undefined" {
		t.Fatalf("raw binding left behind: %s", got)
	}
}

func TestRegisterFuncCoercesArgumentsAndResults(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterFunc("half", func(x float64) float64 { return x / 2 }); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterFunc("floor", func(n int) int { return n }); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterFunc("even", func(n int) bool { return n%2 == 0 }); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterFunc("check", func(s string) (bool, error) { return s != "", nil }); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterFunc("noop", func(int) {}); err != nil {
		t.Fatal(err)
	}
	for js, want := range map[string]string{
		"String(half(3))":              "1.5",
		"String(half(2.5))":            "1.25",
		"String(floor(7.9))":           "7",
		"String(floor(-7.9))":          "-7",
		"String(floor(NaN))":           "0",
		"String(floor(null))":          "0",
		"String(floor())":              "0",
		"String(even(4))":              "true",
		"String(even(10 / 2))":         "false",
		"typeof even(2)":               "boolean",
		"String(check('x'))":           "true",
		"String(check(''))":            "false",
		"String(noop(1))":              "undefined",
		"String(half(1, 'extra', {}))": "0.5",
	} {
		got, err := rt.EvalString(js)
		if err != nil {
			t.Fatalf("%s: %v", js, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", js, got, want)
		}
	}
}

func TestRegisterFuncHidesConversionErrors(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.RegisterFunc("echo", func(s string) string { return s }); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterFunc("table", func() map[string]int { return map[string]int{"a": 1} }); err != nil {
		t.Fatal(err)
	}
	for _, js := range []string{"echo({})", "echo(1)", "table()"} {
		got, err := rt.EvalString(`(function() {
			try { ` + js + `; return 'no throw'; }
			catch (e) { return e.name + '|' + e.message; }
		})()`)
		if err != nil {
			t.Fatalf("%s: %v", js, err)
		}
		if got != "TypeError|invalid argument" {
			t.Errorf("%s threw %q", js, got)
		}
	}
}

func TestRunMicrotasks(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Eval("globalThis.seen = 'no'; Promise.resolve().then(function() { globalThis.seen = 'yes'; });"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	rt.RunMicrotasks()
	if got, _ := rt.EvalString("seen"); got != "yes" {
		t.Fatalf("seen = %q", got)
	}
}

func TestBinaryTransfer(t *testing.T) {
	rt := newTestRuntime(t)
	bt := rt.(core.BinaryTransferer)
	data := bytes.Repeat([]byte{0, 1, 2, 254, 255}, 1000)
	if err := bt.WriteBinaryToJS("__buf", data); err != nil {
		t.Fatalf("WriteBinaryToJS: %v", err)
	}
	if got, _ := rt.EvalString("String(new Uint8Array(__buf)[3])"); got != "254" {
		t.Fatalf("byte 3 = %q", got)
	}
	back, err := bt.ReadBinaryFromJS("__buf")
	if err != nil {
		t.Fatalf("ReadBinaryFromJS: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatal("round trip changed the data")
	}
}

func TestInterruptStopsLoop(t *testing.T) {
	rt := newTestRuntime(t)
	time.AfterFunc(50*time.Millisecond, rt.Interrupt)
	err := rt.Eval("for (;;) {}")
	if err == nil {
		t.Fatal("loop returned without error")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "interrupted") {
		t.Logf("interrupt error: %v", err)
	}
}

func TestInterruptAfterCloseIsSafe(t *testing.T) {
	rt, err := New().NewRuntime(0)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.Close()
	rt.Interrupt()
	rt.Close()
}

func TestMemoryLimit(t *testing.T) {
	rt, err := New().NewRuntime(16 << 20)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()
	err = rt.Eval("var a = []; for (;;) a.push(new Array(100000).fill(1.5));")
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("err = %v, want out of memory", err)
	}
}

func TestInterruptBetweenEvaluationsIsKept(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Eval("globalThis.n = 1"); err != nil {
		t.Fatal(err)
	}
	rt.Interrupt()
	if err := rt.Eval("for (;;) {}"); err == nil {
		t.Fatal("evaluation after Interrupt succeeded")
	}
	if _, err := rt.EvalString("n"); err == nil {
		t.Fatal("EvalString after Interrupt succeeded")
	}
}
