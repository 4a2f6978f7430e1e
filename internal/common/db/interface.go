package db

import (
	"context"
	"time"
)

// Dialect identifies the SQL flavour behind a Database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Database is the connection-pool level handle used by repositories.
type Database interface {
	Querier
	// Transaction runs fn inside a transaction. The transaction is committed when fn
	// returns nil and rolled back otherwise (including on panic).
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Dialect() Dialect
	Ping(ctx context.Context) error
	Close() error
}

// Transaction is a Querier bound to an open transaction.
type Transaction interface {
	Querier
}

// Rows is the iterator returned by Query.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Row is the single-row result of QueryRow.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result is the outcome of Exec.
type Result interface {
	RowsAffected() (int64, error)
}

// PoolConfig holds the connection pool configuration shared by all drivers.
type PoolConfig struct {
	// DSN is the driver specific data source name.
	DSN string `yaml:"dsn"`
	// MaxOpenConnections defaults to 25.
	MaxOpenConnections int `yaml:"maxOpenConnections"`
	// MaxIdleConnections defaults to 5.
	MaxIdleConnections int `yaml:"maxIdleConnections"`
	// ConnMaxLifetime defaults to 5 minutes.
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	// ConnMaxIdleTime defaults to 10 minutes.
	ConnMaxIdleTime time.Duration `yaml:"connMaxIdleTime"`
}

func (c *PoolConfig) applyDefaults() {
	if c.MaxOpenConnections == 0 {
		c.MaxOpenConnections = 25
	}
	if c.MaxIdleConnections == 0 {
		c.MaxIdleConnections = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
}
