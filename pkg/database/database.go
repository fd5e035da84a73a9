// Package database はリレーショナルストアへの接続を扱う。
//
// 開発・テストではmodernc.org/sqlite、本番ではpgx（database/sqlドライバ）を使う。
// ドライバごとのプレースホルダーの違いはsquirrelのStatementBuilderで吸収する。
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nao1215/ordermesh/pkg/config"
	_ "modernc.org/sqlite"
)

// Dialect はSQL方言。
type Dialect string

const (
	// DialectSQLite はmodernc.org/sqliteを使う。
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres はpgxを使う。
	DialectPostgres Dialect = "pgx"
)

// ParseDialect はドライバ名を方言に変換する。
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("未対応のデータベースドライバです: %q", driver)
	}
}

// Builder は方言に合わせたプレースホルダーを使うStatementBuilderを返す。
func (d Dialect) Builder() squirrel.StatementBuilderType {
	if d == DialectPostgres {
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// DB はdatabase/sqlの接続と方言をまとめたもの。
type DB struct {
	// SQL は接続プール。
	SQL *sql.DB
	// Dialect は接続先の方言。
	Dialect Dialect
	// Builder は方言に合わせたクエリビルダー。
	Builder squirrel.StatementBuilderType
}

// New は既存の接続からDBを生成する。
func New(sqlDB *sql.DB, dialect Dialect) *DB {
	return &DB{SQL: sqlDB, Dialect: dialect, Builder: dialect.Builder()}
}

// Open は設定に従って接続を開き、疎通を確認する。
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(string(dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	return New(sqlDB, dialect), nil
}

// Close は接続プールを閉じる。
func (db *DB) Close() error {
	return db.SQL.Close()
}

// IsUniqueViolation は一意制約違反のエラーかどうかを返す。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
