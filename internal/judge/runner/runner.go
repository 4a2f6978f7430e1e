// Package runner executes a submission against a problem's test cases in ordinal order.
package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox"
)

const (
	defaultDiagnosticLines = 20
	defaultDiagnosticWidth = 200
)

// Observer receives one call per sandbox execution.
type Observer interface {
	ObserveSandboxCall(outcome model.Outcome, elapsed time.Duration)
}

// Request describes one run.
type Request struct {
	Language  string
	Code      string
	Cases     []model.TestCase
	Mode      model.RunMode
	TimeLimit time.Duration
}

// Runner drives the sandbox client sequentially over test cases.
type Runner struct {
	client    sandbox.Client
	observer  Observer
	diagLines int
	diagWidth int
}

// Option customises a Runner.
type Option func(*Runner)

// WithObserver reports every sandbox call to o.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithDiagnosticBounds caps diagnostics to lines x width characters.
func WithDiagnosticBounds(lines, width int) Option {
	return func(r *Runner) {
		if lines > 0 {
			r.diagLines = lines
		}
		if width > 0 {
			r.diagWidth = width
		}
	}
}

func New(client sandbox.Client, opts ...Option) *Runner {
	r := &Runner{
		client:    client,
		diagLines: defaultDiagnosticLines,
		diagWidth: defaultDiagnosticWidth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the cases one after another. In ModeJudge it stops at the first
// failing case; in ModeSample every case runs and is reported.
// Sandbox transport errors are folded into runtime failures and never returned.
func (r *Runner) Run(ctx context.Context, req Request) model.RunTrace {
	cases := slices.Clone(req.Cases)
	slices.SortStableFunc(cases, func(a, b model.TestCase) int { return a.Ordinal - b.Ordinal })

	trace := model.RunTrace{
		Mode:    req.Mode,
		Outcome: model.OutcomePassed,
		Total:   len(cases),
		Cases:   make([]model.CaseResult, 0, len(cases)),
	}

	for _, tc := range cases {
		res, err := r.client.Execute(ctx, sandbox.Request{
			Language:  req.Language,
			Code:      req.Code,
			Stdin:     tc.Input,
			TimeLimit: req.TimeLimit,
		})
		cr, diag := r.evaluate(tc, res, err)
		if r.observer != nil {
			r.observer.ObserveSandboxCall(cr.Outcome, cr.Elapsed)
		}

		trace.Attempted++
		trace.Elapsed += cr.Elapsed
		if cr.Passed {
			trace.Passed++
		} else if trace.Outcome == model.OutcomePassed {
			trace.Outcome = cr.Outcome
			ordinal := tc.Ordinal
			trace.FailedOrdinal = &ordinal
			trace.Diagnostic = diag
		}

		if req.Mode == model.ModeSample {
			cr.Input = tc.Input
			cr.Expected = tc.ExpectedOutput
			cr.Actual = r.trim(res.Stdout)
			trace.Cases = append(trace.Cases, cr)
			continue
		}
		trace.Cases = append(trace.Cases, cr)
		if !cr.Passed {
			break
		}
	}
	return trace
}

func (r *Runner) evaluate(tc model.TestCase, res sandbox.Result, err error) (model.CaseResult, string) {
	cr := model.CaseResult{Ordinal: tc.Ordinal}

	if err != nil {
		cr.Outcome = model.OutcomeRuntimeFailure
		cr.ExitCode = -1
		if sandbox.IsTimeout(err) {
			return cr, fmt.Sprintf("time limit exceeded on test case %d", tc.Ordinal)
		}
		return cr, r.trim(fmt.Sprintf("execution failed on test case %d: %v", tc.Ordinal, err))
	}

	cr.ExitCode = res.ExitCode
	cr.Elapsed = res.Elapsed
	cr.Stderr = r.trim(res.Stderr)

	if res.ExitCode != 0 {
		cr.Outcome = model.OutcomeRuntimeFailure
		if strings.Contains(strings.ToLower(res.Stderr), "compile") {
			cr.Outcome = model.OutcomeCompileFailure
		}
		msg := res.Stderr
		if strings.TrimSpace(msg) == "" {
			msg = res.Stdout
		}
		if strings.TrimSpace(msg) == "" {
			msg = fmt.Sprintf("process exited with code %d", res.ExitCode)
		}
		return cr, r.trim(msg)
	}

	if OutputsMatch(res.Stdout, tc.ExpectedOutput) {
		cr.Outcome = model.OutcomePassed
		cr.Passed = true
		return cr, ""
	}
	cr.Outcome = model.OutcomeMismatch
	return cr, fmt.Sprintf("wrong answer on test case %d\nexpected:\n%s\ngot:\n%s",
		tc.Ordinal, r.trim(normalize(tc.ExpectedOutput)), r.trim(normalize(res.Stdout)))
}

// OutputsMatch compares program output with the expected output ignoring trailing whitespace only.
func OutputsMatch(actual, expected string) bool {
	return normalize(actual) == normalize(expected)
}

func normalize(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

func (r *Runner) trim(s string) string {
	return trimToRect(sanitize(s), r.diagLines, r.diagWidth)
}

// sanitize makes program output safe to store in a UTF-8 text column.
func sanitize(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}

// trimToRect keeps at most maxLines lines of at most maxWidth bytes each.
// Lines are cut on rune boundaries.
func trimToRect(s string, maxLines, maxWidth int) string {
	if s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	truncated := false
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if len(line) > maxWidth {
			cut := maxWidth
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			b.WriteString(line[:cut])
			b.WriteString("[...]")
		} else {
			b.WriteString(line)
		}
	}
	if truncated {
		b.WriteString("\n[...]")
	}
	return b.String()
}
