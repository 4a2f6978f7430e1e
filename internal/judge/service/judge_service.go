package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/ratelimit"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/runner"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/verdict"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/collection"
	"go.uber.org/zap"
)

const (
	defaultMaxCodeBytes   = 64 << 10
	defaultStoreTimeout   = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultArchiveTimeout = 10 * time.Second
	defaultCaseCacheTTL   = 30 * time.Second
)

var errNoTestCases = errors.New("no test cases")

// Admitter decides whether a user may start another judging run.
type Admitter interface {
	Admit(ctx context.Context, userID int64) (ratelimit.Decision, error)
}

// CaseRunner executes a submission against test cases.
type CaseRunner interface {
	Run(ctx context.Context, req runner.Request) model.RunTrace
}

// JudgeInput is one submission to judge.
type JudgeInput struct {
	UserID      int64
	ProblemSlug string
	Language    string
	Code        string
}

// Config holds service dependencies and settings.
type Config struct {
	Limiter  Admitter
	Problems repository.ProblemRepository
	Store    repository.JudgementStore
	Runner   CaseRunner

	// Optional collaborators.
	Publisher repository.FirstAcceptPublisher
	Archive   repository.SourceArchive
	Languages sandbox.LanguageSupporter
	Metrics   *Metrics

	MaxCodeBytes   int
	StoreTimeout   time.Duration
	PublishTimeout time.Duration
	ArchiveTimeout time.Duration
	// CaseCacheTTL bounds how long test cases are reused across runs; negative disables caching.
	CaseCacheTTL time.Duration

	Now   func() time.Time
	NewID func() string
}

// JudgeService coordinates admission, execution and persistence of submissions.
type JudgeService struct {
	limiter   Admitter
	problems  repository.ProblemRepository
	store     repository.JudgementStore
	runner    CaseRunner
	publisher repository.FirstAcceptPublisher
	archive   repository.SourceArchive
	languages sandbox.LanguageSupporter
	metrics   *Metrics
	caseCache *collection.Cache

	maxCodeBytes   int
	storeTimeout   time.Duration
	publishTimeout time.Duration
	archiveTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// NewJudgeService creates a judge service.
func NewJudgeService(cfg Config) (*JudgeService, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("judgement store is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = defaultArchiveTimeout
	}
	if cfg.CaseCacheTTL == 0 {
		cfg.CaseCacheTTL = defaultCaseCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	s := &JudgeService{
		limiter:        cfg.Limiter,
		problems:       cfg.Problems,
		store:          cfg.Store,
		runner:         cfg.Runner,
		publisher:      cfg.Publisher,
		archive:        cfg.Archive,
		languages:      cfg.Languages,
		metrics:        cfg.Metrics,
		maxCodeBytes:   cfg.MaxCodeBytes,
		storeTimeout:   cfg.StoreTimeout,
		publishTimeout: cfg.PublishTimeout,
		archiveTimeout: cfg.ArchiveTimeout,
		now:            cfg.Now,
		newID:          cfg.NewID,
	}
	if cfg.CaseCacheTTL > 0 {
		c, err := collection.NewCache(cfg.CaseCacheTTL, collection.WithName("judge-test-cases"), collection.WithLimit(1024))
		if err != nil {
			return nil, fmt.Errorf("create test case cache: %w", err)
		}
		s.caseCache = c
	}
	return s, nil
}

// Judge admits, runs, resolves and persists one submission.
// Once admitted, the run completes even if ctx is cancelled by the caller.
func (s *JudgeService) Judge(ctx context.Context, in JudgeInput) (*model.Submission, error) {
	if err := s.validate(in.ProblemSlug, in.Language, in.Code); err != nil {
		return nil, err
	}
	if in.UserID <= 0 {
		return nil, appErr.ValidationError("user_id", "must be positive")
	}

	decision, err := s.limiter.Admit(ctx, in.UserID)
	if err != nil {
		logger.Error(ctx, "rate limiter unavailable", zap.Int64("user_id", in.UserID), zap.Error(err))
		return nil, appErr.Wrapf(err, appErr.CacheError, "rate limiter unavailable")
	}
	if !decision.Allowed {
		s.metrics.observeRateLimited()
		logger.Warn(ctx, "judge request rate limited",
			zap.Int64("user_id", in.UserID),
			zap.Int64("count", decision.Count),
			zap.Int("limit", decision.Limit),
		)
		return nil, appErr.RateLimitedError(decision.Limit, int64(decision.Window/time.Second), ceilSeconds(decision.RetryAfter))
	}

	problem, cases, err := s.loadProblem(ctx, in.ProblemSlug)
	if err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	trace := s.runner.Run(runCtx, runner.Request{
		Language:  in.Language,
		Code:      in.Code,
		Cases:     cases,
		Mode:      model.ModeJudge,
		TimeLimit: time.Duration(problem.TimeLimitMs) * time.Millisecond,
	})
	v := verdict.Resolve(trace)

	sub := &model.Submission{
		ID:                 s.newID(),
		UserID:             in.UserID,
		ProblemID:          problem.ID,
		ProblemSlug:        problem.Slug,
		Language:           in.Language,
		Code:               in.Code,
		Verdict:            v,
		TestCasesPassed:    trace.Passed,
		TotalTestCases:     trace.Total,
		TestCasesAttempted: trace.Attempted,
		FailedTestCase:     trace.FailedOrdinal,
		Diagnostic:         trace.Diagnostic,
		RuntimeMs:          trace.Elapsed.Milliseconds(),
		CreatedAt:          s.now().UTC(),
	}

	first, err := s.persist(runCtx, sub)
	if err != nil {
		logger.Error(ctx, "persist judgement failed",
			zap.String("submission_id", sub.ID),
			zap.Int64("user_id", sub.UserID),
			zap.Int64("problem_id", sub.ProblemID),
			zap.String("verdict", string(v)),
			zap.Error(err),
		)
		return nil, appErr.Wrapf(err, appErr.TransactionFailed, "persist judgement failed")
	}
	sub.FirstAccept = first

	s.metrics.observeVerdict(v)
	logger.Info(ctx, "submission judged",
		zap.String("submission_id", sub.ID),
		zap.Int64("user_id", sub.UserID),
		zap.String("problem", sub.ProblemSlug),
		zap.String("verdict", string(v)),
		zap.Int("passed", sub.TestCasesPassed),
		zap.Int("total", sub.TotalTestCases),
		zap.Bool("first_accept", first),
	)

	if first {
		s.metrics.observeFirstAccept()
		s.notifyFirstAccept(runCtx, model.FirstAcceptEvent{
			UserID:       sub.UserID,
			ProblemID:    sub.ProblemID,
			ProblemSlug:  sub.ProblemSlug,
			SubmissionID: sub.ID,
			AcceptedAt:   sub.CreatedAt,
		})
	}
	s.archiveSource(runCtx, sub)
	return sub, nil
}

// RunAgainstSamples runs code against the problem's sample cases only.
// Nothing is persisted and every sample is reported.
func (s *JudgeService) RunAgainstSamples(ctx context.Context, slug, language, code string) ([]model.CaseResult, error) {
	if err := s.validate(slug, language, code); err != nil {
		return nil, err
	}
	problem, cases, err := s.loadProblem(ctx, slug)
	if err != nil {
		return nil, err
	}

	samples := make([]model.TestCase, 0, len(cases))
	for _, tc := range cases {
		if tc.IsSample {
			samples = append(samples, tc)
		}
	}
	if len(samples) == 0 {
		return nil, appErr.New(appErr.ProblemHasNoTestCases).WithMessage("problem has no sample test cases")
	}

	trace := s.runner.Run(ctx, runner.Request{
		Language:  language,
		Code:      code,
		Cases:     samples,
		Mode:      model.ModeSample,
		TimeLimit: time.Duration(problem.TimeLimitMs) * time.Millisecond,
	})
	return trace.Cases, nil
}

func (s *JudgeService) validate(slug, language, code string) error {
	if strings.TrimSpace(slug) == "" {
		return appErr.ValidationError("problem_slug", "required")
	}
	if strings.TrimSpace(language) == "" {
		return appErr.ValidationError("language", "required")
	}
	if s.languages != nil && !s.languages.Supports(language) {
		return appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", language)
	}
	if strings.TrimSpace(code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(code) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}
	return nil
}

func (s *JudgeService) loadProblem(ctx context.Context, slug string) (*model.Problem, []model.TestCase, error) {
	problem, err := s.problems.GetProblemBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, nil, appErr.Newf(appErr.ProblemNotFound, "problem %q not found", slug)
		}
		return nil, nil, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}

	cases, err := s.testCases(ctx, problem.ID)
	if err != nil {
		if errors.Is(err, errNoTestCases) {
			return nil, nil, appErr.Newf(appErr.ProblemHasNoTestCases, "problem %q has no test cases", slug)
		}
		return nil, nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	return problem, cases, nil
}

// testCases loads through the in-process cache; concurrent misses share one load.
// Empty results are returned as errNoTestCases so they are never cached.
func (s *JudgeService) testCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	fetch := func() (any, error) {
		tctx := withTimeout(context.WithoutCancel(ctx), s.storeTimeout)
		defer tctx.cancel()
		cases, err := s.problems.ListTestCases(tctx.ctx, problemID)
		if err != nil {
			return nil, err
		}
		if len(cases) == 0 {
			return nil, errNoTestCases
		}
		return cases, nil
	}
	if s.caseCache == nil {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		return v.([]model.TestCase), nil
	}
	v, err := s.caseCache.Take(strconv.FormatInt(problemID, 10), fetch)
	if err != nil {
		return nil, err
	}
	return v.([]model.TestCase), nil
}

// persist writes the submission, counters and first-acceptance fact atomically.
func (s *JudgeService) persist(ctx context.Context, sub *model.Submission) (bool, error) {
	tctx := withTimeout(ctx, s.storeTimeout)
	defer tctx.cancel()

	accepted := sub.Verdict == model.VerdictAccepted
	var first bool
	err := s.store.WithinTx(tctx.ctx, func(ctx context.Context, tx repository.JudgementTx) error {
		first = false
		if err := tx.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		if err := tx.IncrementProblemCounters(ctx, sub.ProblemID, accepted); err != nil {
			return err
		}
		if !accepted {
			return nil
		}
		prior, err := tx.HasPriorAcceptance(ctx, sub.UserID, sub.ProblemID)
		if err != nil {
			return err
		}
		if prior {
			return nil
		}
		inserted, err := tx.RecordFirstAcceptance(ctx, sub.UserID, sub.ProblemID, sub.ID, sub.CreatedAt)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if err := tx.IncrementSolvedCount(ctx, sub.UserID); err != nil {
			return err
		}
		first = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

func (s *JudgeService) notifyFirstAccept(ctx context.Context, event model.FirstAcceptEvent) {
	if s.publisher == nil {
		return
	}
	if err := deliverFirstAccept(ctx, s.publisher, s.store, event, s.publishTimeout); err != nil {
		logger.Warn(ctx, "first accept signal not delivered, sweeper will retry",
			zap.String("submission_id", event.SubmissionID),
			zap.Int64("user_id", event.UserID),
			zap.Int64("problem_id", event.ProblemID),
			zap.Error(err),
		)
	}
}

func (s *JudgeService) archiveSource(ctx context.Context, sub *model.Submission) {
	if s.archive == nil {
		return
	}
	tctx := withTimeout(ctx, s.archiveTimeout)
	defer tctx.cancel()
	if err := s.archive.Archive(tctx.ctx, sub); err != nil {
		logger.Warn(ctx, "archive source failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
}

// deliverFirstAccept publishes the signal and marks the solve row as notified.
func deliverFirstAccept(ctx context.Context, publisher repository.FirstAcceptPublisher, store repository.JudgementStore, event model.FirstAcceptEvent, timeout time.Duration) error {
	tctx := withTimeout(ctx, timeout)
	defer tctx.cancel()
	if err := publisher.PublishFirstAccept(tctx.ctx, event); err != nil {
		return err
	}
	if err := store.MarkFirstAcceptNotified(tctx.ctx, event.UserID, event.ProblemID); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
