package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceSource は商品の単価を提供する。
type PriceSource interface {
	// UnitPrice は商品の単価を返す。
	UnitPrice(ctx context.Context, product string) (decimal.Decimal, error)
}

// FlatPrice はすべての商品に同じ単価を返すPriceSource。
type FlatPrice decimal.Decimal

// DefaultUnitPrice は既定の単価。
var DefaultUnitPrice = decimal.NewFromInt(100)

// UnitPrice は常に同じ単価を返す。
func (p FlatPrice) UnitPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

// Total は明細から合計金額を計算する。明細が同じなら常に同じ結果になる。
func Total(ctx context.Context, prices PriceSource, items []Item) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, it := range items {
		unit, err := prices.UnitPrice(ctx, it.Product)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total, nil
}
