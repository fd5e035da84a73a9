package order

import (
	"strings"

	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/pagination"
)

// SortField は一覧の並び替えキー。
type SortField string

const (
	// SortByCreatedAt は作成日時順。
	SortByCreatedAt SortField = "created_at"
	// SortByTotalAmount は合計金額順。
	SortByTotalAmount SortField = "total_amount"
	// SortByStatus はステータス順。
	SortByStatus SortField = "status"
)

// sortAliases は受け付ける並び替えキーの表記。
var sortAliases = map[string]SortField{
	"createdAt":    SortByCreatedAt,
	"created_at":   SortByCreatedAt,
	"totalAmount":  SortByTotalAmount,
	"total_amount": SortByTotalAmount,
	"status":       SortByStatus,
}

// ListQuery は注文一覧の取得条件。
type ListQuery struct {
	// OwnerID が空でなければその所有者の注文に絞り込む。
	OwnerID string
	Page    int
	Limit   int
	SortBy  SortField
	Desc    bool
}

// Params はページ指定部分を返す。
func (q ListQuery) Params() pagination.Params {
	return pagination.Params{Page: q.Page, Limit: q.Limit}
}

// Offset は取得開始位置を返す。
func (q ListQuery) Offset() int {
	return q.Params().Offset()
}

// ParseListQuery はクエリパラメータから取得条件を組み立てる。
// 未知の並び替えキーは作成日時順として扱い、エラーにはしない。
func ParseListQuery(page, limit, sortBy, sortOrder string) (ListQuery, error) {
	p, err := pagination.Parse(page, limit)
	if err != nil {
		return ListQuery{}, err
	}
	q := ListQuery{Page: p.Page, Limit: p.Limit, SortBy: SortByCreatedAt, Desc: true}

	if f, ok := sortAliases[sortBy]; ok {
		q.SortBy = f
	}
	switch strings.ToLower(sortOrder) {
	case "", "desc":
	case "asc":
		q.Desc = false
	default:
		return ListQuery{}, apperror.Validation("sortOrder must be asc or desc")
	}
	return q, nil
}

// Page は一覧の1ページ分の結果。
type Page struct {
	Orders     []*Order
	Pagination pagination.Response
}
