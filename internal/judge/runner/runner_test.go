package runner_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/runner"
	"codejudge/internal/judge/sandbox"
)

// scriptedClient answers by stdin and records which inputs were executed.
type scriptedClient struct {
	mu      sync.Mutex
	answers map[string]sandbox.Result
	errs    map[string]error
	calls   []string
}

func (c *scriptedClient) Execute(_ context.Context, req sandbox.Request) (sandbox.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req.Stdin)
	if err, ok := c.errs[req.Stdin]; ok {
		return sandbox.Result{}, err
	}
	return c.answers[req.Stdin], nil
}

func ok(stdout string) sandbox.Result {
	return sandbox.Result{Stdout: stdout, Elapsed: 5 * time.Millisecond}
}

func cases(n int) []model.TestCase {
	out := make([]model.TestCase, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.TestCase{
			Ordinal:        i,
			Input:          "in" + string(rune('0'+i)),
			ExpectedOutput: "out" + string(rune('0'+i)),
		})
	}
	return out
}

// failedAt returns the failing ordinal or -1 when nothing failed.
func failedAt(trace model.RunTrace) int {
	if trace.FailedOrdinal == nil {
		return -1
	}
	return *trace.FailedOrdinal
}

func TestRunAllPass(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{answers: map[string]sandbox.Result{
		"in1": ok("out1\n"), "in2": ok("out2"), "in3": ok("out3  \n\n"),
	}}
	trace := runner.New(client).Run(context.Background(), runner.Request{Cases: cases(3)})

	if trace.Failed() || trace.FailedOrdinal != nil || trace.Passed != 3 || trace.Attempted != 3 || trace.Total != 3 {
		t.Fatalf("unexpected trace %+v", trace)
	}
	if trace.Elapsed != 15*time.Millisecond {
		t.Fatalf("expected summed elapsed, got %v", trace.Elapsed)
	}
}

func TestRunStopsAtFirstMismatch(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{answers: map[string]sandbox.Result{
		"in1": ok("out1"), "in2": ok("nope"), "in3": ok("out3"),
	}}
	trace := runner.New(client).Run(context.Background(), runner.Request{Cases: cases(3)})

	if trace.Outcome != model.OutcomeMismatch || failedAt(trace) != 2 {
		t.Fatalf("unexpected outcome %+v", trace)
	}
	if trace.Passed != 1 || trace.Attempted != 2 {
		t.Fatalf("expected passed=1 attempted=2, got %d/%d", trace.Passed, trace.Attempted)
	}
	if len(client.calls) != 2 {
		t.Fatalf("case 3 must never execute, calls=%v", client.calls)
	}
	if !strings.Contains(trace.Diagnostic, "expected:\nout2") || !strings.Contains(trace.Diagnostic, "got:\nnope") {
		t.Fatalf("unexpected diagnostic %q", trace.Diagnostic)
	}
}

func TestRunClassifiesNonZeroExit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		stderr string
		want   model.Outcome
	}{
		{"compile marker", "Compile error: expected ';'", model.OutcomeCompileFailure},
		{"lowercase marker", "failed to compile main.cpp", model.OutcomeCompileFailure},
		{"runtime", "Traceback: ZeroDivisionError", model.OutcomeRuntimeFailure},
		{"empty stderr", "", model.OutcomeRuntimeFailure},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := &scriptedClient{answers: map[string]sandbox.Result{
				"in1": ok("out1"),
				"in2": {Stderr: tt.stderr, ExitCode: 1},
			}}
			trace := runner.New(client).Run(context.Background(), runner.Request{Cases: cases(3)})
			if trace.Outcome != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, trace.Outcome)
			}
			if trace.Attempted != 2 || failedAt(trace) != 2 {
				t.Fatalf("unexpected trace %+v", trace)
			}
			if trace.Diagnostic == "" {
				t.Fatalf("expected diagnostic")
			}
		})
	}
}

func TestRunTransportErrorIsRuntimeFailure(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		answers: map[string]sandbox.Result{"in1": ok("out1")},
		errs: map[string]error{
			"in2": &sandbox.TransportError{Op: "execute", Timeout: true, Err: context.DeadlineExceeded},
		},
	}
	trace := runner.New(client).Run(context.Background(), runner.Request{Cases: cases(3)})
	if trace.Outcome != model.OutcomeRuntimeFailure || trace.Attempted != 2 {
		t.Fatalf("unexpected trace %+v", trace)
	}
	if !strings.Contains(trace.Diagnostic, "time limit exceeded") {
		t.Fatalf("unexpected diagnostic %q", trace.Diagnostic)
	}

	client = &scriptedClient{errs: map[string]error{"in1": &sandbox.TransportError{Op: "execute", Err: errors.New("connection reset")}}}
	trace = runner.New(client).Run(context.Background(), runner.Request{Cases: cases(2)})
	if trace.Outcome != model.OutcomeRuntimeFailure || trace.Passed != 0 || trace.Attempted != 1 {
		t.Fatalf("unexpected trace %+v", trace)
	}
}

func TestRunExecutesInOrdinalOrder(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{answers: map[string]sandbox.Result{
		"in1": ok("out1"), "in2": ok("out2"), "in3": ok("out3"),
	}}
	shuffled := cases(3)
	shuffled[0], shuffled[2] = shuffled[2], shuffled[0]

	runner.New(client).Run(context.Background(), runner.Request{Cases: shuffled})
	if strings.Join(client.calls, ",") != "in1,in2,in3" {
		t.Fatalf("unexpected execution order %v", client.calls)
	}
	if shuffled[0].Ordinal != 3 {
		t.Fatalf("caller slice must not be reordered")
	}
}

func TestRunSampleModeNeverStopsEarly(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{
		answers: map[string]sandbox.Result{
			"in1": ok("wrong"), "in3": ok("out3"),
		},
		errs: map[string]error{"in2": &sandbox.TransportError{Op: "execute", Err: errors.New("boom")}},
	}
	trace := runner.New(client).Run(context.Background(), runner.Request{Cases: cases(3), Mode: model.ModeSample})

	if trace.Attempted != 3 || trace.Passed != 1 || len(trace.Cases) != 3 {
		t.Fatalf("unexpected trace %+v", trace)
	}
	if trace.Outcome != model.OutcomeMismatch || failedAt(trace) != 1 {
		t.Fatalf("expected first failure to be recorded, got %+v", trace)
	}
	want := []bool{false, false, true}
	for i, cr := range trace.Cases {
		if cr.Passed != want[i] {
			t.Fatalf("case %d: expected passed=%v", cr.Ordinal, want[i])
		}
	}
	if trace.Cases[0].Actual != "wrong" || trace.Cases[0].Expected != "out1" || trace.Cases[0].Input != "in1" {
		t.Fatalf("sample results must carry io, got %+v", trace.Cases[0])
	}
}

func TestOutputsMatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		actual, expected string
		want             bool
	}{
		{"42\n", "42", true},
		{"42", "42\n\n", true},
		{"42 \t\r\n", "42", true},
		{"4 2", "42", false},
		{" 42", "42", false},
		{"1\n2\n", "1\n2", true},
		{"1\n\n2", "1\n2", false},
		{"", "", true},
	}
	for _, tt := range tests {
		if got := runner.OutputsMatch(tt.actual, tt.expected); got != tt.want {
			t.Errorf("OutputsMatch(%q, %q) = %v, want %v", tt.actual, tt.expected, got, tt.want)
		}
	}
}

func TestDiagnosticIsBounded(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 500) + "\n" + strings.Repeat("line\n", 50)
	client := &scriptedClient{answers: map[string]sandbox.Result{"in1": {Stderr: long, ExitCode: 2}}}
	trace := runner.New(client, runner.WithDiagnosticBounds(5, 80)).Run(context.Background(), runner.Request{Cases: cases(1)})

	lines := strings.Split(trace.Diagnostic, "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 5 lines plus marker, got %d", len(lines))
	}
	if len(lines[0]) != 80+len("[...]") {
		t.Fatalf("expected first line to be cut at 80, got %d", len(lines[0]))
	}
}

func TestDiagnosticStaysValidUTF8(t *testing.T) {
	t.Parallel()
	// The curly quote straddles the default 200 byte cut.
	stderr := "compile error: " + strings.Repeat("x", 184) + "\u2018main\u2019 undeclared"
	client := &scriptedClient{answers: map[string]sandbox.Result{"in1": {Stderr: stderr, ExitCode: 1}}}
	trace := runner.New(client).Run(context.Background(), runner.Request{Cases: cases(1)})

	if trace.Outcome != model.OutcomeCompileFailure {
		t.Fatalf("expected compile failure, got %s", trace.Outcome)
	}
	if !utf8.ValidString(trace.Diagnostic) {
		t.Fatalf("diagnostic is not valid UTF-8: %q", trace.Diagnostic)
	}
	if !strings.HasSuffix(trace.Diagnostic, "x[...]") {
		t.Fatalf("expected cut before the partial rune, got %q", trace.Diagnostic)
	}
}

func TestMismatchDiagnosticDropsBinaryOutput(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{answers: map[string]sandbox.Result{"in1": ok("4\x002\xff\xfe")}}
	trace := runner.New(client).Run(context.Background(), runner.Request{Cases: cases(1)})

	if trace.Outcome != model.OutcomeMismatch {
		t.Fatalf("expected mismatch, got %s", trace.Outcome)
	}
	if !utf8.ValidString(trace.Diagnostic) || strings.ContainsRune(trace.Diagnostic, 0) {
		t.Fatalf("diagnostic not storable: %q", trace.Diagnostic)
	}
	if !strings.Contains(trace.Diagnostic, "got:\n42") {
		t.Fatalf("expected sanitized output in diagnostic, got %q", trace.Diagnostic)
	}
}

func TestRunRecordsFailureOnOrdinalZero(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{answers: map[string]sandbox.Result{"a": ok("wrong"), "b": ok("1")}}
	trace := runner.New(client).Run(context.Background(), runner.Request{Cases: []model.TestCase{
		{Ordinal: 0, Input: "a", ExpectedOutput: "42"},
		{Ordinal: 1, Input: "b", ExpectedOutput: "1"},
	}})

	if trace.Outcome != model.OutcomeMismatch || trace.Attempted != 1 {
		t.Fatalf("unexpected trace %+v", trace)
	}
	if trace.FailedOrdinal == nil || *trace.FailedOrdinal != 0 {
		t.Fatalf("expected failure on ordinal 0, got %v", trace.FailedOrdinal)
	}
	if !strings.Contains(trace.Diagnostic, "test case 0") {
		t.Fatalf("diagnostic should name case 0, got %q", trace.Diagnostic)
	}
}

type countingObserver struct {
	mu    sync.Mutex
	calls map[model.Outcome]int
}

func (o *countingObserver) ObserveSandboxCall(outcome model.Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[outcome]++
}

func TestRunReportsToObserver(t *testing.T) {
	t.Parallel()
	obs := &countingObserver{calls: map[model.Outcome]int{}}
	client := &scriptedClient{answers: map[string]sandbox.Result{"in1": ok("out1"), "in2": ok("bad")}}
	runner.New(client, runner.WithObserver(obs)).Run(context.Background(), runner.Request{Cases: cases(3)})

	if obs.calls[model.OutcomePassed] != 1 || obs.calls[model.OutcomeMismatch] != 1 {
		t.Fatalf("unexpected observations %v", obs.calls)
	}
}
