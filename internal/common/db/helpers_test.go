package db_test

import (
	"database/sql"
	"fmt"
	"testing"

	"codejudge/internal/common/db"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

func TestUniqueViolation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		err     error
		wantKey string
		wantOK  bool
	}{
		{
			name:    "mysql duplicate entry",
			err:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-2' for key 'problem_solves.uk_user_problem'"},
			wantKey: "problem_solves.uk_user_problem",
			wantOK:  true,
		},
		{
			name:    "wrapped postgres unique violation",
			err:     fmt.Errorf("exec failed: %w", &pq.Error{Code: "23505", Constraint: "uk_user_problem"}),
			wantKey: "uk_user_problem",
			wantOK:  true,
		},
		{
			name:   "other mysql error",
			err:    &mysql.MySQLError{Number: 1213, Message: "Deadlock found"},
			wantOK: false,
		},
		{
			name:   "plain error",
			err:    sql.ErrConnDone,
			wantOK: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			key, ok := db.UniqueViolation(tc.err)
			if ok != tc.wantOK {
				t.Fatalf("expected ok=%v, got %v", tc.wantOK, ok)
			}
			if key != tc.wantKey {
				t.Fatalf("expected key %q, got %q", tc.wantKey, key)
			}
		})
	}
}

func TestIsNoRows(t *testing.T) {
	t.Parallel()
	if !db.IsNoRows(fmt.Errorf("lookup: %w", sql.ErrNoRows)) {
		t.Fatalf("expected wrapped sql.ErrNoRows to be detected")
	}
	if db.IsNoRows(sql.ErrTxDone) {
		t.Fatalf("unexpected no rows match")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := db.Open("sqlite", db.PoolConfig{DSN: "file::memory:"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
