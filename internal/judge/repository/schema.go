package repository

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"codejudge/internal/common/db"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate applies the table definitions for the database's dialect. Statements are idempotent.
func Migrate(ctx context.Context, database db.Database) error {
	raw, err := schemaFS.ReadFile("schema/" + string(database.Dialect()) + ".sql")
	if err != nil {
		return fmt.Errorf("no schema for dialect %s: %w", database.Dialect(), err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
