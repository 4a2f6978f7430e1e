package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
)

// JudgementStore persists the outcome of a judging run.
type JudgementStore interface {
	// WithinTx runs fn in a single transaction: all of fn's writes commit or none do.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx JudgementTx) error) error
	// ListPendingFirstAccepts returns first acceptances recorded before olderThan whose signal was not delivered.
	ListPendingFirstAccepts(ctx context.Context, olderThan time.Time, limit int) ([]model.FirstAcceptEvent, error)
	// MarkFirstAcceptNotified records delivery of the first-accept signal.
	MarkFirstAcceptNotified(ctx context.Context, userID, problemID int64) error
}

// JudgementTx is the set of writes allowed inside WithinTx.
type JudgementTx interface {
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	IncrementProblemCounters(ctx context.Context, problemID int64, accepted bool) error
	HasPriorAcceptance(ctx context.Context, userID, problemID int64) (bool, error)
	// RecordFirstAcceptance inserts the (user, problem) solve row. It returns false
	// when the row already exists; the uniqueness constraint decides concurrent races.
	RecordFirstAcceptance(ctx context.Context, userID, problemID int64, submissionID string, at time.Time) (bool, error)
	IncrementSolvedCount(ctx context.Context, userID int64) error
}

// SQLJudgementStore implements JudgementStore for PostgreSQL and MySQL.
type SQLJudgementStore struct {
	db db.Database
}

func NewJudgementStore(database db.Database) *SQLJudgementStore {
	return &SQLJudgementStore{db: database}
}

func (s *SQLJudgementStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx JudgementTx) error) error {
	return s.db.Transaction(ctx, func(tx db.Transaction) error {
		return fn(ctx, &sqlJudgementTx{q: tx, dialect: s.db.Dialect()})
	})
}

func (s *SQLJudgementStore) ListPendingFirstAccepts(ctx context.Context, olderThan time.Time, limit int) ([]model.FirstAcceptEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT ps.user_id, ps.problem_id, p.slug, ps.submission_id, ps.created_at
		FROM problem_solves ps
		JOIN problems p ON p.id = ps.problem_id
		WHERE ps.notified_at IS NULL AND ps.created_at < ?
		ORDER BY ps.created_at ASC
		LIMIT ?`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending first accepts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.FirstAcceptEvent
	for rows.Next() {
		var ev model.FirstAcceptEvent
		if err := rows.Scan(&ev.UserID, &ev.ProblemID, &ev.ProblemSlug, &ev.SubmissionID, &ev.AcceptedAt); err != nil {
			return nil, fmt.Errorf("scan first accept: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLJudgementStore) MarkFirstAcceptNotified(ctx context.Context, userID, problemID int64) error {
	_, err := s.db.Exec(ctx,
		"UPDATE problem_solves SET notified_at = ? WHERE user_id = ? AND problem_id = ? AND notified_at IS NULL",
		time.Now().UTC(), userID, problemID,
	)
	if err != nil {
		return fmt.Errorf("mark first accept notified: %w", err)
	}
	return nil
}

type sqlJudgementTx struct {
	q       db.Querier
	dialect db.Dialect
}

func (t *sqlJudgementTx) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub == nil {
		return errors.New("submission is nil")
	}
	if sub.ID == "" {
		return errors.New("submission id is required")
	}
	var failed interface{}
	if sub.FailedTestCase != nil {
		failed = *sub.FailedTestCase
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO submissions
		(id, user_id, problem_id, language, code, verdict, test_cases_passed, total_test_cases,
		 test_cases_attempted, failed_test_case, diagnostic, runtime_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.ProblemID, sub.Language, sub.Code, string(sub.Verdict),
		sub.TestCasesPassed, sub.TotalTestCases, sub.TestCasesAttempted, failed,
		sub.Diagnostic, sub.RuntimeMs, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (t *sqlJudgementTx) IncrementProblemCounters(ctx context.Context, problemID int64, accepted bool) error {
	query := "UPDATE problems SET submission_count = submission_count + 1 WHERE id = ?"
	if accepted {
		query = "UPDATE problems SET submission_count = submission_count + 1, accepted_count = accepted_count + 1 WHERE id = ?"
	}
	res, err := t.q.Exec(ctx, query, problemID)
	if err != nil {
		return fmt.Errorf("increment problem counters: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("increment problem counters: %w", ErrProblemNotFound)
	}
	return nil
}

func (t *sqlJudgementTx) HasPriorAcceptance(ctx context.Context, userID, problemID int64) (bool, error) {
	var one int
	err := t.q.QueryRow(ctx,
		"SELECT 1 FROM problem_solves WHERE user_id = ? AND problem_id = ? LIMIT 1",
		userID, problemID,
	).Scan(&one)
	if db.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check prior acceptance: %w", err)
	}
	return true, nil
}

func (t *sqlJudgementTx) RecordFirstAcceptance(ctx context.Context, userID, problemID int64, submissionID string, at time.Time) (bool, error) {
	if t.dialect == db.DialectPostgres {
		// A failed statement aborts a PostgreSQL transaction, so the conflict must not raise.
		res, err := t.q.Exec(ctx, `
			INSERT INTO problem_solves (user_id, problem_id, submission_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, problem_id) DO NOTHING`,
			userID, problemID, submissionID, at,
		)
		if err != nil {
			return false, fmt.Errorf("record first acceptance: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("record first acceptance: %w", err)
		}
		return n == 1, nil
	}

	_, err := t.q.Exec(ctx,
		"INSERT INTO problem_solves (user_id, problem_id, submission_id, created_at) VALUES (?, ?, ?, ?)",
		userID, problemID, submissionID, at,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return false, nil
		}
		return false, fmt.Errorf("record first acceptance: %w", err)
	}
	return true, nil
}

func (t *sqlJudgementTx) IncrementSolvedCount(ctx context.Context, userID int64) error {
	query := "INSERT INTO user_stats (user_id, solved_count) VALUES (?, 1) ON DUPLICATE KEY UPDATE solved_count = solved_count + 1"
	if t.dialect == db.DialectPostgres {
		query = "INSERT INTO user_stats (user_id, solved_count) VALUES (?, 1) ON CONFLICT (user_id) DO UPDATE SET solved_count = user_stats.solved_count + 1"
	}
	if _, err := t.q.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("increment solved count: %w", err)
	}
	return nil
}
