package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"codejudge/internal/judge/model"
)

type solveKey struct {
	userID    int64
	problemID int64
}

type solveRow struct {
	submissionID string
	createdAt    time.Time
	notified     bool
}

// MemoryStore is an in-process problem catalog and judgement store.
// Transactions are serialised by a mutex and rolled back by restoring a snapshot.
type MemoryStore struct {
	mu          sync.Mutex
	problems    map[int64]model.Problem
	slugs       map[string]int64
	cases       map[int64][]model.TestCase
	submissions map[string]model.Submission
	solves      map[solveKey]solveRow
	solved      map[int64]int64
	nextID      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		problems:    make(map[int64]model.Problem),
		slugs:       make(map[string]int64),
		cases:       make(map[int64][]model.TestCase),
		submissions: make(map[string]model.Submission),
		solves:      make(map[solveKey]solveRow),
		solved:      make(map[int64]int64),
	}
}

// AddProblem registers a problem and its cases. A zero ID is assigned automatically.
func (s *MemoryStore) AddProblem(p model.Problem, cases []model.TestCase) model.Problem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	}
	s.problems[p.ID] = p
	s.slugs[p.Slug] = p.ID
	stored := make([]model.TestCase, 0, len(cases))
	for _, tc := range cases {
		tc.ProblemID = p.ID
		stored = append(stored, tc)
	}
	slices.SortStableFunc(stored, func(a, b model.TestCase) int { return a.Ordinal - b.Ordinal })
	s.cases[p.ID] = stored
	return p
}

func (s *MemoryStore) GetProblemBySlug(_ context.Context, slug string) (*model.Problem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.slugs[slug]
	if !ok {
		return nil, ErrProblemNotFound
	}
	p := s.problems[id]
	return &p, nil
}

func (s *MemoryStore) ListTestCases(_ context.Context, problemID int64) ([]model.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cases[problemID]), nil
}

// Submissions returns a copy of all persisted submissions.
func (s *MemoryStore) Submissions() []model.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, sub)
	}
	return out
}

// SolvedCount returns the user's solved counter.
func (s *MemoryStore) SolvedCount(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.solved[userID]
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx JudgementTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memoryTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) ListPendingFirstAccepts(_ context.Context, olderThan time.Time, limit int) ([]model.FirstAcceptEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []model.FirstAcceptEvent
	for k, row := range s.solves {
		if row.notified || !row.createdAt.Before(olderThan) {
			continue
		}
		events = append(events, model.FirstAcceptEvent{
			UserID:       k.userID,
			ProblemID:    k.problemID,
			ProblemSlug:  s.problems[k.problemID].Slug,
			SubmissionID: row.submissionID,
			AcceptedAt:   row.createdAt,
		})
	}
	slices.SortFunc(events, func(a, b model.FirstAcceptEvent) int { return a.AcceptedAt.Compare(b.AcceptedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *MemoryStore) MarkFirstAcceptNotified(_ context.Context, userID, problemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := solveKey{userID: userID, problemID: problemID}
	if row, ok := s.solves[k]; ok {
		row.notified = true
		s.solves[k] = row
	}
	return nil
}

type memorySnapshot struct {
	problems    map[int64]model.Problem
	submissions map[string]model.Submission
	solves      map[solveKey]solveRow
	solved      map[int64]int64
}

func (s *MemoryStore) snapshot() memorySnapshot {
	return memorySnapshot{
		problems:    cloneMap(s.problems),
		submissions: cloneMap(s.submissions),
		solves:      cloneMap(s.solves),
		solved:      cloneMap(s.solved),
	}
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.problems = snap.problems
	s.submissions = snap.submissions
	s.solves = snap.solves
	s.solved = snap.solved
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// memoryTx runs with MemoryStore.mu held.
type memoryTx struct {
	s *MemoryStore
}

func (t *memoryTx) CreateSubmission(_ context.Context, sub *model.Submission) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	if _, exists := t.s.submissions[sub.ID]; exists {
		return fmt.Errorf("submission %s already exists", sub.ID)
	}
	t.s.submissions[sub.ID] = *sub
	return nil
}

func (t *memoryTx) IncrementProblemCounters(_ context.Context, problemID int64, accepted bool) error {
	p, ok := t.s.problems[problemID]
	if !ok {
		return fmt.Errorf("increment problem counters: %w", ErrProblemNotFound)
	}
	p.SubmissionCount++
	if accepted {
		p.AcceptedCount++
	}
	t.s.problems[problemID] = p
	return nil
}

func (t *memoryTx) HasPriorAcceptance(_ context.Context, userID, problemID int64) (bool, error) {
	_, ok := t.s.solves[solveKey{userID: userID, problemID: problemID}]
	return ok, nil
}

func (t *memoryTx) RecordFirstAcceptance(_ context.Context, userID, problemID int64, submissionID string, at time.Time) (bool, error) {
	k := solveKey{userID: userID, problemID: problemID}
	if _, ok := t.s.solves[k]; ok {
		return false, nil
	}
	t.s.solves[k] = solveRow{submissionID: submissionID, createdAt: at}
	return true, nil
}

func (t *memoryTx) IncrementSolvedCount(_ context.Context, userID int64) error {
	t.s.solved[userID]++
	return nil
}
