// Package db は注文をリレーショナルストアに保存するorder.Storeの実装を提供する。
// クエリはsquirrelで組み立て、SQLiteとPostgreSQLのプレースホルダーの違いを吸収する。
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/nao1215/ordermesh/internal/orders/order"
	"github.com/nao1215/ordermesh/pkg/database"
	"github.com/shopspring/decimal"
)

// tableName は注文テーブル名。
const tableName = "orders"

// columns はSELECTで取得するカラム。scanOrderの順序と一致させること。
var columns = []string{"id", "user_id", "items", "status", "total_amount", "created_at", "updated_at"}

// Store はorder.Storeの実装。
type Store struct {
	db *database.DB
}

var _ order.Store = (*Store)(nil)

// New は新しいStoreを生成する。
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Insert は注文を保存する。
func (s *Store) Insert(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("明細のシリアライズに失敗: %w", err)
	}

	query, args, err := s.db.Builder.Insert(tableName).
		Columns(columns...).
		Values(o.ID, o.OwnerID, string(items), string(o.Status), o.TotalAmount.String(), o.CreatedAt.UTC(), o.UpdatedAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.SQL.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("注文の挿入に失敗: %w", err)
	}
	return nil
}

// Get は注文を取得する。存在しなければorder.ErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, id string) (*order.Order, error) {
	query, args, err := s.db.Builder.Select(columns...).
		From(tableName).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	o, err := scanOrder(s.db.SQL.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗: %w", err)
	}
	return o, nil
}

// List は条件に一致する注文を1ページ分返す。並び順が同じ行はIDで順序を固定する。
func (s *Store) List(ctx context.Context, q order.ListQuery) ([]*order.Order, error) {
	direction := "ASC"
	if q.Desc {
		direction = "DESC"
	}

	builder := s.db.Builder.Select(columns...).
		From(tableName).
		OrderBy(fmt.Sprintf("%s %s", sortColumn(q.SortBy), direction), "id "+direction).
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset()))
	if q.OwnerID != "" {
		builder = builder.Where(squirrel.Eq{"user_id": q.OwnerID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("注文一覧のクエリ実行に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orders := make([]*order.Order, 0, q.Limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("注文の読み込みに失敗: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Count は条件に一致する注文の総数を返す。ownerIDが空なら全件。
func (s *Store) Count(ctx context.Context, ownerID string) (int, error) {
	builder := s.db.Builder.Select("COUNT(*)").From(tableName)
	if ownerID != "" {
		builder = builder.Where(squirrel.Eq{"user_id": ownerID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.SQL.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("注文数の取得に失敗: %w", err)
	}
	return n, nil
}

// UpdateStatus はステータスがexpectedの場合に限りnextへ更新する。
// 1文の条件付きUPDATEで行うため、判定と書き込みの間に他の更新が割り込むことはない。
func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next order.Status, updatedAt time.Time) (bool, error) {
	query, args, err := s.db.Builder.Update(tableName).
		Set("status", string(next)).
		Set("updated_at", updatedAt.UTC()).
		Where(squirrel.Eq{"id": id, "status": string(expected)}).
		ToSql()
	if err != nil {
		return false, err
	}
	return s.execAffected(ctx, query, args)
}

// DeleteIfStatus はステータスがexpectedの場合に限り削除する。
func (s *Store) DeleteIfStatus(ctx context.Context, id string, expected order.Status) (bool, error) {
	query, args, err := s.db.Builder.Delete(tableName).
		Where(squirrel.Eq{"id": id, "status": string(expected)}).
		ToSql()
	if err != nil {
		return false, err
	}
	return s.execAffected(ctx, query, args)
}

// execAffected はクエリを実行し、1行以上変更されたかを返す。
func (s *Store) execAffected(ctx context.Context, query string, args []any) (bool, error) {
	res, err := s.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// sortColumn は並び替えキーをカラム名に変換する。許可リスト外の値は作成日時になる。
func sortColumn(f order.SortField) string {
	switch f {
	case order.SortByTotalAmount:
		return "total_amount"
	case order.SortByStatus:
		return "status"
	default:
		return "created_at"
	}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOrder は1行を注文に変換する。
func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o      order.Order
		items  []byte
		status string
		total  decimal.Decimal
	)
	if err := row.Scan(&o.ID, &o.OwnerID, &items, &status, &total, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("明細のデコードに失敗: %w", err)
	}
	o.Status = order.Status(status)
	o.TotalAmount = total
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
