package model

import "time"

// RunMode selects between full judging and sample runs.
type RunMode int

const (
	// ModeJudge stops at the first failing case.
	ModeJudge RunMode = iota
	// ModeSample runs every case and reports each one.
	ModeSample
)

// Outcome classifies how a single case (or a whole run) ended.
type Outcome string

const (
	OutcomePassed         Outcome = "passed"
	OutcomeMismatch       Outcome = "mismatch"
	OutcomeRuntimeFailure Outcome = "runtime_failure"
	OutcomeCompileFailure Outcome = "compile_failure"
)

// CaseResult is the per-case record kept in a trace.
type CaseResult struct {
	Ordinal  int           `json:"ordinal"`
	Outcome  Outcome       `json:"outcome"`
	Passed   bool          `json:"passed"`
	Input    string        `json:"input,omitempty"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// RunTrace summarises a run over a problem's test cases.
// Outcome is OutcomePassed when no case failed; otherwise it is the
// classification of the first failing case and FailedOrdinal names it.
// FailedOrdinal is nil when no case failed; ordinals may start at zero.
type RunTrace struct {
	Mode          RunMode       `json:"-"`
	Outcome       Outcome       `json:"outcome"`
	FailedOrdinal *int          `json:"failed_ordinal,omitempty"`
	Passed        int           `json:"passed"`
	Attempted     int           `json:"attempted"`
	Total         int           `json:"total"`
	Diagnostic    string        `json:"diagnostic,omitempty"`
	Cases         []CaseResult  `json:"cases,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// Failed reports whether any case failed.
func (t RunTrace) Failed() bool {
	return t.Outcome != OutcomePassed
}
