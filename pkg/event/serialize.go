package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/ordermesh/pkg/requestid"
)

// ErrNilPayload はペイロード無しでイベントを生成しようとしたことを表す。
var ErrNilPayload = errors.New("event payload is nil")

// Payload はイベント固有のデータ。自身のイベント種別と対象エンティティの種類を知っている。
type Payload interface {
	AggregateType() AggregateType
	EventType() Type
}

// New はpayloadからイベントを組み立てる。
// 種別はpayloadの型から決まり、コンテキストにリクエストIDがあれば記録する。
func New(ctx context.Context, aggregateID, actorID string, payload Payload) (*Event, error) {
	if payload == nil {
		return nil, ErrNilPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%sのシリアライズに失敗: %w", payload.EventType(), err)
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: payload.AggregateType(),
		EventType:     payload.EventType(),
		ActorID:       actorID,
		RequestID:     requestid.FromContext(ctx),
		Data:          data,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// DecodeData はイベントのDataをTとして取り出す。イベント種別がTと一致しなければエラー。
func DecodeData[T Payload](e *Event) (*T, error) {
	var data T
	if e.EventType != data.EventType() {
		return nil, fmt.Errorf("イベント種別が一致しない: got %s, want %s", e.EventType, data.EventType())
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("%sのデシリアライズに失敗: %w", e.EventType, err)
	}
	return &data, nil
}
