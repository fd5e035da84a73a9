// Package order は注文のドメインモデルと、ロールに応じたステータス遷移ルールを提供する。
//
// HTTPやストレージの詳細には依存せず、Storeインターフェースを通じて永続化を行う。
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/shopspring/decimal"
)

// MaxQuantity は明細1件あたりの最大数量。
const MaxQuantity = 1_000_000

// ErrNotFound はストアに注文が存在しないことを表す。
var ErrNotFound = errors.New("order not found")

// Status は注文のステータス。
type Status string

const (
	// StatusCreated は作成直後の状態。唯一の初期状態。
	StatusCreated Status = "created"
	// StatusInProgress は処理中の状態。
	StatusInProgress Status = "in_progress"
	// StatusCompleted は完了状態。一般ユーザーにとって終端。
	StatusCompleted Status = "completed"
	// StatusCancelled はキャンセル状態。一般ユーザーにとって終端。
	StatusCancelled Status = "cancelled"
)

// Statuses は有効なステータスの一覧。
var Statuses = []Status{StatusCreated, StatusInProgress, StatusCompleted, StatusCancelled}

// ParseStatus は文字列をステータスに変換する。列挙外の値はfalseを返す。
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal は一般ユーザーが変更できない終端状態かどうかを返す。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Item は注文の明細。
type Item struct {
	// Product は商品名。
	Product string `json:"product"`
	// Quantity は数量。正の整数。
	Quantity int `json:"quantity"`
}

// Order は注文。OwnerIDとTotalAmountは作成後に変更されない。
type Order struct {
	ID          string
	OwnerID     string
	Items       []Item
	Status      Status
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VisibleTo は要求者がこの注文を参照・操作できるかを返す。
// 管理者はすべて、それ以外は自分の注文のみ。
func (o *Order) VisibleTo(requester Requester) bool {
	return requester.Admin || (requester.ID != "" && requester.ID == o.OwnerID)
}

// Requester は操作を要求したユーザー。
type Requester struct {
	// ID はユーザーID。
	ID string
	// Admin は管理者ロールを持つかどうか。
	Admin bool
}

// ValidateItems は注文明細を検証する。
// 1件以上あり、各明細の商品名が空でなく数量が1以上MaxQuantity以下であること。
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return apperror.Validation("Order must contain at least one item")
	}
	for _, it := range items {
		if strings.TrimSpace(it.Product) == "" {
			return apperror.Validation("Each item requires a product")
		}
		if it.Quantity <= 0 {
			return apperror.Validation("Each item requires a positive quantity")
		}
		if it.Quantity > MaxQuantity {
			return apperror.Validation(fmt.Sprintf("Each item quantity must be at most %d", MaxQuantity))
		}
	}
	return nil
}
