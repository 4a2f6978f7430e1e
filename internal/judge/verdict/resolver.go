// Package verdict maps a run trace to a final verdict.
package verdict

import "codejudge/internal/judge/model"

// Resolve is a pure function of the trace. A compile failure wins over any
// passed count; a trace with no attempted cases is never Accepted.
func Resolve(trace model.RunTrace) model.Verdict {
	switch trace.Outcome {
	case model.OutcomeCompileFailure:
		return model.VerdictCompilationError
	case model.OutcomeRuntimeFailure:
		return model.VerdictRuntimeError
	case model.OutcomeMismatch:
		return model.VerdictWrongAnswer
	}
	if trace.Attempted == 0 || trace.Passed != trace.Attempted {
		return model.VerdictRuntimeError
	}
	return model.VerdictAccepted
}
