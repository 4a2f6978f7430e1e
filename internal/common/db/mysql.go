package db

import (
	_ "github.com/go-sql-driver/mysql"
)

// NewMySQL opens a MySQL connection pool.
// DSN format: "user:password@tcp(localhost:3306)/judge?parseTime=true&loc=UTC"
func NewMySQL(cfg PoolConfig) (Database, error) {
	return open("mysql", DialectMySQL, cfg)
}

// Open picks the driver by name. Supported: postgres, mysql.
func Open(driver string, cfg PoolConfig) (Database, error) {
	switch Dialect(driver) {
	case DialectPostgres:
		return NewPostgreSQL(cfg)
	case DialectMySQL:
		return NewMySQL(cfg)
	default:
		return nil, errUnsupportedDriver(driver)
	}
}
