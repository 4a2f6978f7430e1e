package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
)

const (
	defaultProblemCacheTTL      = 10 * time.Minute
	defaultProblemCacheEmptyTTL = time.Minute
	problemCacheKeyPrefix       = "judge:problem:slug:"
)

var ErrProblemNotFound = errors.New("problem not found")

// ProblemRepository is the narrow read side of the problem catalog.
type ProblemRepository interface {
	GetProblemBySlug(ctx context.Context, slug string) (*model.Problem, error)
	// ListTestCases returns the problem's cases ordered by ordinal.
	ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error)
}

// SQLProblemRepository reads problems and test cases from SQL.
// Problem lookups go through the cache; counters in the cached copy may lag.
type SQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a problem repository. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *SQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &SQLProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

func (r *SQLProblemRepository) GetProblemBySlug(ctx context.Context, slug string) (*model.Problem, error) {
	if slug == "" {
		return nil, errors.New("slug is required")
	}
	if r.cache == nil {
		return r.getBySlugFromDB(ctx, slug)
	}

	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemCacheKeyPrefix+slug,
		r.ttl,
		r.emptyTTL,
		func(p *model.Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.getBySlugFromDB(ctx, slug)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *SQLProblemRepository) getBySlugFromDB(ctx context.Context, slug string) (*model.Problem, error) {
	row := r.db.QueryRow(ctx,
		"SELECT id, slug, title, time_limit_ms, submission_count, accepted_count FROM problems WHERE slug = ? LIMIT 1",
		slug,
	)
	p := &model.Problem{}
	if err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.TimeLimitMs, &p.SubmissionCount, &p.AcceptedCount); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, fmt.Errorf("get problem by slug: %w", err)
	}
	return p, nil
}

func (r *SQLProblemRepository) ListTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, problem_id, ordinal, input, expected_output, is_sample FROM test_cases WHERE problem_id = ? ORDER BY ordinal ASC",
		problemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Ordinal, &tc.Input, &tc.ExpectedOutput, &tc.IsSample); err != nil {
			return nil, fmt.Errorf("scan test case: %w", err)
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test cases: %w", err)
	}
	return cases, nil
}

func marshalProblem(p *model.Problem) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalProblem(data string) (*model.Problem, error) {
	var p model.Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
