package model

// Problem is the read-only view of a catalog problem plus its aggregate counters.
type Problem struct {
	ID              int64  `json:"id"`
	Slug            string `json:"slug"`
	Title           string `json:"title"`
	TimeLimitMs     int    `json:"time_limit_ms"`
	SubmissionCount int64  `json:"submission_count"`
	AcceptedCount   int64  `json:"accepted_count"`
}

// TestCase is one input/expected-output pair. Ordinal defines execution order.
type TestCase struct {
	ID             int64  `json:"id"`
	ProblemID      int64  `json:"problem_id"`
	Ordinal        int    `json:"ordinal"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
}
