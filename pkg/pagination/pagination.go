// Package pagination は一覧APIのページ指定の解釈とレスポンスのページ情報を扱う。
package pagination

import (
	"math"
	"strconv"

	"github.com/nao1215/ordermesh/pkg/apperror"
)

const (
	// DefaultPage は既定のページ番号。
	DefaultPage = 1
	// DefaultLimit は既定の1ページあたりの件数。
	DefaultLimit = 10
	// MaxLimit は1ページあたりの最大件数。
	MaxLimit = 100
	// MaxPage は受け付ける最大のページ番号。Offsetがintに収まる範囲。
	MaxPage = math.MaxInt / MaxLimit
)

// Params はページ指定。
type Params struct {
	Page  int
	Limit int
}

// Offset は取得開始位置を返す。
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Parse はクエリパラメータの文字列からページ指定を作る。空文字列は既定値になる。
// 1 ≤ page ≤ MaxPage、0 < limit ≤ MaxLimitでなければVALIDATION_ERRORを返す。
func Parse(page, limit string) (Params, error) {
	p := Params{Page: DefaultPage, Limit: DefaultLimit}
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return Params{}, apperror.Validation("page must be a positive integer")
		}
		if n > MaxPage {
			return Params{}, apperror.Validation("page is too large")
		}
		p.Page = n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > MaxLimit {
			return Params{}, apperror.Validation("limit must be between 1 and 100")
		}
		p.Limit = n
	}
	return p, nil
}

// Response はレスポンスに含めるページ情報。
type Response struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewResponse はページ指定と総件数からページ情報を作る。
func NewResponse(p Params, total int) Response {
	return Response{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: TotalPages(total, p.Limit)}
}

// TotalPages は総件数からページ数を計算する。
func TotalPages(total, limit int) int {
	if total == 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
