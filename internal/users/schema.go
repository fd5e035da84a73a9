package users

import (
	"context"
	"embed"
	"fmt"

	"github.com/nao1215/ordermesh/pkg/database"
	"github.com/nao1215/ordermesh/pkg/migration"
)

// migrationsFS は方言ごとのマイグレーションファイル。
//
//go:embed migrations
var migrationsFS embed.FS

// initSchema は方言に合ったマイグレーションを適用する。
func initSchema(ctx context.Context, db *database.DB) error {
	dir := "migrations/sqlite"
	if db.Dialect == database.DialectPostgres {
		dir = "migrations/postgres"
	}
	if err := migration.Run(ctx, db, migrationsFS, dir); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
