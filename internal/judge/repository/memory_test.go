package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/repository"
)

func seed(store *repository.MemoryStore) model.Problem {
	return store.AddProblem(model.Problem{Slug: "two-sum", Title: "Two Sum"}, []model.TestCase{
		{Ordinal: 2, Input: "b", ExpectedOutput: "B"},
		{Ordinal: 1, Input: "a", ExpectedOutput: "A", IsSample: true},
	})
}

func TestMemoryStoreCatalog(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	p := seed(store)

	got, err := store.GetProblemBySlug(context.Background(), "two-sum")
	if err != nil || got.ID != p.ID {
		t.Fatalf("unexpected problem %+v err=%v", got, err)
	}
	if _, err := store.GetProblemBySlug(context.Background(), "missing"); !errors.Is(err, repository.ErrProblemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	cases, _ := store.ListTestCases(context.Background(), p.ID)
	if len(cases) != 2 || cases[0].Ordinal != 1 || cases[0].ProblemID != p.ID {
		t.Fatalf("expected cases ordered by ordinal, got %+v", cases)
	}
}

func TestMemoryStoreRollback(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	p := seed(store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx repository.JudgementTx) error {
		if err := tx.CreateSubmission(ctx, &model.Submission{ID: "s1", ProblemID: p.ID}); err != nil {
			return err
		}
		if err := tx.IncrementProblemCounters(ctx, p.ID, true); err != nil {
			return err
		}
		if _, err := tx.RecordFirstAcceptance(ctx, 1, p.ID, "s1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected tx error, got %v", err)
	}
	if len(store.Submissions()) != 0 {
		t.Fatalf("submission must be rolled back")
	}
	got, _ := store.GetProblemBySlug(ctx, "two-sum")
	if got.SubmissionCount != 0 || got.AcceptedCount != 0 {
		t.Fatalf("counters must be rolled back, got %+v", got)
	}
	pending, _ := store.ListPendingFirstAccepts(ctx, time.Now().Add(time.Hour), 10)
	if len(pending) != 0 {
		t.Fatalf("solve row must be rolled back")
	}
}

func TestMemoryStoreFirstAcceptanceIsUnique(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	p := seed(store)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		firsts int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.WithinTx(ctx, func(ctx context.Context, tx repository.JudgementTx) error {
				first, err := tx.RecordFirstAcceptance(ctx, 9, p.ID, "s", time.Now())
				if err != nil {
					return err
				}
				if first {
					mu.Lock()
					firsts++
					mu.Unlock()
					return tx.IncrementSolvedCount(ctx, 9)
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	if firsts != 1 {
		t.Fatalf("expected exactly one first acceptance, got %d", firsts)
	}
	if store.SolvedCount(9) != 1 {
		t.Fatalf("expected solved count 1, got %d", store.SolvedCount(9))
	}
}

func TestMemoryStorePendingFirstAccepts(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	p := seed(store)
	ctx := context.Background()
	at := time.Now().Add(-time.Minute)

	_ = store.WithinTx(ctx, func(ctx context.Context, tx repository.JudgementTx) error {
		_, err := tx.RecordFirstAcceptance(ctx, 5, p.ID, "s5", at)
		return err
	})

	pending, _ := store.ListPendingFirstAccepts(ctx, time.Now(), 10)
	if len(pending) != 1 || pending[0].ProblemSlug != "two-sum" || pending[0].SubmissionID != "s5" {
		t.Fatalf("unexpected pending %+v", pending)
	}
	if err := store.MarkFirstAcceptNotified(ctx, 5, p.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	pending, _ = store.ListPendingFirstAccepts(ctx, time.Now(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", pending)
	}
}
