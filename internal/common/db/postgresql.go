package db

import (
	_ "github.com/lib/pq"
)

// NewPostgreSQL opens a PostgreSQL connection pool.
// DSN format: "user=postgres password=password host=localhost port=5432 dbname=judge sslmode=disable"
func NewPostgreSQL(cfg PoolConfig) (Database, error) {
	return open("postgres", DialectPostgres, cfg)
}
