package model

import "time"

// Submission is the persisted record of one judged attempt.
type Submission struct {
	ID                 string    `json:"id"`
	UserID             int64     `json:"user_id"`
	ProblemID          int64     `json:"problem_id"`
	ProblemSlug        string    `json:"problem_slug"`
	Language           string    `json:"language"`
	Code               string    `json:"-"`
	Verdict            Verdict   `json:"verdict"`
	TestCasesPassed    int       `json:"test_cases_passed"`
	TotalTestCases     int       `json:"total_test_cases"`
	TestCasesAttempted int       `json:"test_cases_attempted"`
	FailedTestCase     *int      `json:"failed_test_case,omitempty"`
	Diagnostic         string    `json:"diagnostic,omitempty"`
	RuntimeMs          int64     `json:"runtime_ms"`
	CreatedAt          time.Time `json:"created_at"`

	// FirstAccept is set when this submission produced the user's first
	// acceptance of the problem. It is derived at commit time and not stored.
	FirstAccept bool `json:"first_accept"`
}

// FirstAcceptEvent is emitted once per (user, problem) pair.
type FirstAcceptEvent struct {
	UserID       int64     `json:"user_id"`
	ProblemID    int64     `json:"problem_id"`
	ProblemSlug  string    `json:"problem_slug,omitempty"`
	SubmissionID string    `json:"submission_id"`
	AcceptedAt   time.Time `json:"accepted_at"`
}
