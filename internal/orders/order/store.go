package order

import (
	"context"
	"time"
)

// Store は注文の永続化を行う。
//
// UpdateStatusとDeleteIfStatusは現在のステータスがexpectedと一致する場合のみ書き込む
// 条件付き操作で、一致しなければfalseを返す。
type Store interface {
	// Insert は注文を保存する。
	Insert(ctx context.Context, o *Order) error
	// Get は注文を取得する。存在しなければErrNotFoundを返す。
	Get(ctx context.Context, id string) (*Order, error)
	// List は条件に一致する注文を1ページ分返す。
	List(ctx context.Context, q ListQuery) ([]*Order, error)
	// Count は条件に一致する注文の総数を返す。
	Count(ctx context.Context, ownerID string) (int, error)
	// UpdateStatus はステータスがexpectedの場合に限りnextへ更新する。
	UpdateStatus(ctx context.Context, id string, expected, next Status, updatedAt time.Time) (bool, error)
	// DeleteIfStatus はステータスがexpectedの場合に限り削除する。
	DeleteIfStatus(ctx context.Context, id string, expected Status) (bool, error)
}
