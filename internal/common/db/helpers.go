package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

const (
	mysqlDuplicateEntry = 1062
	pqUniqueViolation   = pq.ErrorCode("23505")
)

// Querier is the statement surface shared by Database and Transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports whether err is a duplicate key error from MySQL or
// PostgreSQL and names the violated key when the driver exposes it.
func UniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return duplicateKeyName(myErr.Message), true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// duplicateKeyName pulls the key out of "Duplicate entry '...' for key 'name'".
func duplicateKeyName(message string) string {
	_, key, ok := strings.Cut(message, "for key ")
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimSpace(key), "`\"'")
}

func errUnsupportedDriver(driver string) error {
	return fmt.Errorf("unsupported database driver %q", driver)
}
