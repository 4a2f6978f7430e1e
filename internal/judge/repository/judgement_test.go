package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"codejudge/internal/common/db"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/repository"

	"github.com/go-sql-driver/mysql"
)

type fakeResult struct{ affected int64 }

func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeRow struct{ err error }

func (r fakeRow) Scan(dest ...interface{}) error { return r.err }

// fakeDatabase records statements and answers Exec from a queue.
type fakeDatabase struct {
	dialect  db.Dialect
	queries  []string
	args     [][]interface{}
	results  []fakeResult
	execErrs []error
	rowErr   error
	txErr    error
}

func (f *fakeDatabase) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDatabase) QueryRow(_ context.Context, query string, _ ...interface{}) db.Row {
	f.queries = append(f.queries, query)
	return fakeRow{err: f.rowErr}
}

func (f *fakeDatabase) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	var err error
	if len(f.execErrs) > 0 {
		err, f.execErrs = f.execErrs[0], f.execErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	res := fakeResult{affected: 1}
	if len(f.results) > 0 {
		res, f.results = f.results[0], f.results[1:]
	}
	return res, nil
}

func (f *fakeDatabase) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if f.txErr != nil {
		return f.txErr
	}
	return fn(f)
}

func (f *fakeDatabase) Dialect() db.Dialect { return f.dialect }

func (f *fakeDatabase) Ping(context.Context) error { return nil }

func (f *fakeDatabase) Close() error { return nil }

func recordFirst(t *testing.T, store *repository.SQLJudgementStore) bool {
	t.Helper()
	var first bool
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
		var err error
		first, err = tx.RecordFirstAcceptance(ctx, 1, 2, "s", time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	return first
}

func TestRecordFirstAcceptancePostgres(t *testing.T) {
	t.Parallel()
	fake := &fakeDatabase{dialect: db.DialectPostgres, results: []fakeResult{{affected: 1}, {affected: 0}}}
	store := repository.NewJudgementStore(fake)

	if !recordFirst(t, store) {
		t.Fatalf("expected first acceptance when a row was inserted")
	}
	if recordFirst(t, store) {
		t.Fatalf("expected no first acceptance on conflict")
	}
	if !strings.Contains(fake.queries[0], "ON CONFLICT (user_id, problem_id) DO NOTHING") {
		t.Fatalf("unexpected postgres statement %q", fake.queries[0])
	}
}

func TestRecordFirstAcceptanceMySQL(t *testing.T) {
	t.Parallel()
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-2' for key 'uk_problem_solves_user_problem'"}
	fake := &fakeDatabase{dialect: db.DialectMySQL, execErrs: []error{nil, dup}}
	store := repository.NewJudgementStore(fake)

	if !recordFirst(t, store) {
		t.Fatalf("expected first acceptance")
	}
	if recordFirst(t, store) {
		t.Fatalf("expected duplicate to mean not first")
	}

	fake.execErrs = []error{errors.New("lock wait timeout")}
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
		_, err := tx.RecordFirstAcceptance(ctx, 1, 2, "s", time.Now())
		return err
	})
	if err == nil {
		t.Fatalf("expected non-duplicate errors to surface")
	}
}

func TestIncrementProblemCountersMissingProblem(t *testing.T) {
	t.Parallel()
	fake := &fakeDatabase{dialect: db.DialectPostgres, results: []fakeResult{{affected: 0}}}
	store := repository.NewJudgementStore(fake)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
		return tx.IncrementProblemCounters(ctx, 99, true)
	})
	if !errors.Is(err, repository.ErrProblemNotFound) {
		t.Fatalf("expected problem not found, got %v", err)
	}
	if !strings.Contains(fake.queries[0], "accepted_count = accepted_count + 1") {
		t.Fatalf("accepted run must bump accepted_count: %q", fake.queries[0])
	}
}

func TestIncrementSolvedCountUpsertPerDialect(t *testing.T) {
	t.Parallel()
	for dialect, want := range map[db.Dialect]string{
		db.DialectPostgres: "ON CONFLICT (user_id) DO UPDATE",
		db.DialectMySQL:    "ON DUPLICATE KEY UPDATE",
	} {
		fake := &fakeDatabase{dialect: dialect}
		store := repository.NewJudgementStore(fake)
		_ = store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
			return tx.IncrementSolvedCount(ctx, 1)
		})
		if !strings.Contains(fake.queries[0], want) {
			t.Fatalf("%s: unexpected statement %q", dialect, fake.queries[0])
		}
	}
}

func TestHasPriorAcceptance(t *testing.T) {
	t.Parallel()
	fake := &fakeDatabase{dialect: db.DialectPostgres, rowErr: sql.ErrNoRows}
	store := repository.NewJudgementStore(fake)
	var prior bool
	_ = store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
		var err error
		prior, err = tx.HasPriorAcceptance(ctx, 1, 2)
		return err
	})
	if prior {
		t.Fatalf("expected no prior acceptance")
	}

	fake.rowErr = nil
	_ = store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
		var err error
		prior, err = tx.HasPriorAcceptance(ctx, 1, 2)
		return err
	})
	if !prior {
		t.Fatalf("expected prior acceptance")
	}
}

func TestCreateSubmissionValidates(t *testing.T) {
	t.Parallel()
	store := repository.NewJudgementStore(&fakeDatabase{dialect: db.DialectMySQL})
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
		return tx.CreateSubmission(ctx, &model.Submission{})
	})
	if err == nil {
		t.Fatalf("expected missing id to be rejected")
	}
}

func TestCreateSubmissionStoresFailedCase(t *testing.T) {
	t.Parallel()
	zero := 0
	tests := []struct {
		name   string
		failed *int
		want   interface{}
	}{
		{name: "no failure", failed: nil, want: nil},
		{name: "first ordinal", failed: &zero, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeDatabase{dialect: db.DialectPostgres}
			store := repository.NewJudgementStore(fake)
			err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.JudgementTx) error {
				return tx.CreateSubmission(ctx, &model.Submission{ID: "s", FailedTestCase: tt.failed})
			})
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if got := fake.args[0][9]; got != tt.want {
				t.Fatalf("failed_test_case arg = %v, want %v", got, tt.want)
			}
		})
	}
}
