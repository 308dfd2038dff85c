package persistence

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema applies the embedded schema files in name order.
// Every statement is written to be idempotent, so it is safe to call on each startup.
func EnsureSchema(ctx context.Context, db Execer, logger *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("ensure schema: no database handle")
	}

	filenames, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(filenames)

	for _, name := range filenames {
		content, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", name, err)
		}

		logger.Info("applying schema", zap.String("file", name))
		if _, err := db.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("apply schema %s: %w", name, err)
		}
	}

	logger.Info("schema ensured", zap.Int("count", len(filenames)))
	return nil
}
