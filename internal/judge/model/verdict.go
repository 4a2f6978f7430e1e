package model

// Verdict is the final classification of a judged submission.
type Verdict string

const (
	VerdictAccepted         Verdict = "ACCEPTED"
	VerdictWrongAnswer      Verdict = "WRONG_ANSWER"
	VerdictRuntimeError     Verdict = "RUNTIME_ERROR"
	VerdictCompilationError Verdict = "COMPILATION_ERROR"
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAccepted, VerdictWrongAnswer, VerdictRuntimeError, VerdictCompilationError:
		return true
	}
	return false
}
