package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/event"
	"github.com/nao1215/ordermesh/pkg/metrics"
	"github.com/nao1215/ordermesh/pkg/pagination"
	"golang.org/x/sync/errgroup"
)

// maxWriteAttempts は条件付き書き込みが競合した場合に再評価する最大回数。
const maxWriteAttempts = 3

// Service は注文の作成・参照・ステータス変更・削除を行う。
type Service struct {
	store     Store
	prices    PriceSource
	policy    Policy
	publisher event.Publisher
	now       func() time.Time
}

// NewService は新しいServiceを生成する。publisherがnilならイベントは配信しない。
func NewService(store Store, prices PriceSource, policy Policy, publisher event.Publisher) *Service {
	return &Service{
		store:     store,
		prices:    prices,
		policy:    policy,
		publisher: publisher,
		now:       time.Now,
	}
}

// Create は注文を作成する。初期ステータスはcreated。
func (s *Service) Create(ctx context.Context, ownerID string, items []Item) (*Order, error) {
	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	total, err := Total(ctx, s.prices, items)
	if err != nil {
		return nil, fmt.Errorf("合計金額の計算に失敗: %w", err)
	}

	now := s.now().UTC()
	o := &Order{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Items:       append([]Item(nil), items...),
		Status:      StatusCreated,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, o); err != nil {
		return nil, fmt.Errorf("注文の保存に失敗: %w", err)
	}

	itemData := make([]event.OrderItemData, 0, len(items))
	for _, it := range items {
		itemData = append(itemData, event.OrderItemData{Product: it.Product, Quantity: it.Quantity})
	}
	event.Emit(ctx, s.publisher, o.ID, ownerID,
		event.OrderCreatedData{OwnerID: ownerID, Items: itemData, TotalAmount: total.String()})
	return o, nil
}

// Get は注文を取得する。参照権限が無い場合も存在しない場合と同じくORDER_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, requester Requester, id string) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, orderNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗: %w", err)
	}
	if !o.VisibleTo(requester) {
		return nil, orderNotFound()
	}
	return o, nil
}

// List は注文一覧を返す。管理者はすべて、それ以外は自分の注文のみ。q.OwnerIDは要求者から決まる。
// ページの取得と総件数の取得は並行に行う。
func (s *Service) List(ctx context.Context, requester Requester, q ListQuery) (*Page, error) {
	q.OwnerID = requester.ID
	if requester.Admin {
		q.OwnerID = ""
	}

	var (
		orders []*Order
		total  int
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		orders, err = s.store.List(egCtx, q)
		return err
	})
	eg.Go(func() error {
		var err error
		total, err = s.store.Count(egCtx, q.OwnerID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗: %w", err)
	}

	return &Page{Orders: orders, Pagination: pagination.NewResponse(q.Params(), total)}, nil
}

// SetStatus は注文のステータスを変更する。変更されるのはステータスと更新日時のみ。
//
// 判定と書き込みは「現在のステータスが判定時と同じ場合のみ更新」で行う。
// 書き込みまでの間に他のリクエストがステータスを変えていれば、読み直して判定し直す。
func (s *Service) SetStatus(ctx context.Context, requester Requester, id, status string) (*Order, error) {
	next, ok := ParseStatus(status)
	if !ok {
		return nil, apperror.Validation("status must be one of created, in_progress, completed, cancelled")
	}

	for range maxWriteAttempts {
		o, err := s.Get(ctx, requester, id)
		if err != nil {
			return nil, err
		}
		if err := s.policy.CheckStatusChange(requester, o.Status, next); err != nil {
			metrics.OrderTransitionsTotal.WithLabelValues(string(next), "rejected").Inc()
			return nil, err
		}

		now := s.now().UTC()
		updated, err := s.store.UpdateStatus(ctx, id, o.Status, next, now)
		if err != nil {
			return nil, fmt.Errorf("ステータスの更新に失敗: %w", err)
		}
		if !updated {
			continue
		}

		from := o.Status
		o.Status = next
		o.UpdatedAt = now
		metrics.OrderTransitionsTotal.WithLabelValues(string(next), "ok").Inc()
		event.Emit(ctx, s.publisher, o.ID, requester.ID,
			event.OrderStatusChangedData{From: string(from), To: string(next), ByAdmin: requester.Admin})
		return o, nil
	}

	metrics.OrderTransitionsTotal.WithLabelValues(string(next), "conflict").Inc()
	return nil, apperror.Conflict(apperror.CodeConflict, "Order was modified concurrently, please retry")
}

// Delete は注文を物理削除する。管理者以外はcreatedかcancelledの注文のみ削除できる。
func (s *Service) Delete(ctx context.Context, requester Requester, id string) error {
	for range maxWriteAttempts {
		o, err := s.Get(ctx, requester, id)
		if err != nil {
			return err
		}
		if err := s.policy.CheckDelete(requester, o.Status); err != nil {
			return err
		}

		deleted, err := s.store.DeleteIfStatus(ctx, id, o.Status)
		if err != nil {
			return fmt.Errorf("注文の削除に失敗: %w", err)
		}
		if !deleted {
			continue
		}

		event.Emit(ctx, s.publisher, o.ID, requester.ID,
			event.OrderDeletedData{OwnerID: o.OwnerID, Status: string(o.Status), TotalAmount: o.TotalAmount.String()})
		return nil
	}
	return apperror.Conflict(apperror.CodeConflict, "Order was modified concurrently, please retry")
}

// orderNotFound はORDER_NOT_FOUNDエラーを返す。
func orderNotFound() error {
	return apperror.NotFound(apperror.CodeOrderNotFound, "Order not found")
}
