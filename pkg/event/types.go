package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeOrder は注文エンティティを表す。
	AggregateTypeOrder AggregateType = "Order"
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeOrderCreated は注文が作成されたことを表す。
	TypeOrderCreated Type = "OrderCreated"
	// TypeOrderStatusChanged は注文ステータスが変更されたことを表す。
	TypeOrderStatusChanged Type = "OrderStatusChanged"
	// TypeOrderDeleted は注文が物理削除されたことを表す。削除の監査証跡として使う。
	TypeOrderDeleted Type = "OrderDeleted"

	// TypeUserRegistered はユーザーが登録されたことを表す。
	TypeUserRegistered Type = "UserRegistered"
)

// Event はサービスが外部に通知するドメインイベント。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。Kafkaのメッセージキーにも使う。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// ActorID は操作を行ったユーザーのID。
	ActorID string `json:"actor_id,omitempty"`
	// RequestID は発生元リクエストのID。
	RequestID string `json:"request_id,omitempty"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// OrderItemData は注文明細。
type OrderItemData struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

// OrderCreatedData はOrderCreatedイベントのデータ。
type OrderCreatedData struct {
	// OwnerID は注文の所有者。
	OwnerID string `json:"owner_id"`
	// Items は注文明細。
	Items []OrderItemData `json:"items"`
	// TotalAmount は合計金額（10進文字列）。
	TotalAmount string `json:"total_amount"`
}

// OrderStatusChangedData はOrderStatusChangedイベントのデータ。
type OrderStatusChangedData struct {
	// From は変更前のステータス。
	From string `json:"from"`
	// To は変更後のステータス。
	To string `json:"to"`
	// ByAdmin は管理者による変更かどうか。
	ByAdmin bool `json:"by_admin"`
}

// OrderDeletedData はOrderDeletedイベントのデータ。
type OrderDeletedData struct {
	// OwnerID は注文の所有者。
	OwnerID string `json:"owner_id"`
	// Status は削除時点のステータス。
	Status string `json:"status"`
	// TotalAmount は削除された注文の合計金額。
	TotalAmount string `json:"total_amount"`
}

// UserRegisteredData はUserRegisteredイベントのデータ。
type UserRegisteredData struct {
	// Email はメールアドレス。
	Email string `json:"email"`
	// Name は表示名。
	Name string `json:"name"`
}

// AggregateType はPayloadを実装する。
func (OrderCreatedData) AggregateType() AggregateType { return AggregateTypeOrder }

// EventType はPayloadを実装する。
func (OrderCreatedData) EventType() Type { return TypeOrderCreated }

// AggregateType はPayloadを実装する。
func (OrderStatusChangedData) AggregateType() AggregateType { return AggregateTypeOrder }

// EventType はPayloadを実装する。
func (OrderStatusChangedData) EventType() Type { return TypeOrderStatusChanged }

// AggregateType はPayloadを実装する。
func (OrderDeletedData) AggregateType() AggregateType { return AggregateTypeOrder }

// EventType はPayloadを実装する。
func (OrderDeletedData) EventType() Type { return TypeOrderDeleted }

// AggregateType はPayloadを実装する。
func (UserRegisteredData) AggregateType() AggregateType { return AggregateTypeUser }

// EventType はPayloadを実装する。
func (UserRegisteredData) EventType() Type { return TypeUserRegistered }
