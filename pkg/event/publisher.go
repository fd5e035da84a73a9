package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/ordermesh/pkg/metrics"
	"github.com/nao1215/ordermesh/pkg/requestid"
	"github.com/segmentio/kafka-go"
)

// PublishTimeout は1イベントの配信にかける最大時間。
const PublishTimeout = 5 * time.Second

// Publisher はドメインイベントの配信先。
type Publisher interface {
	// Publish はイベントを配信する。
	Publish(ctx context.Context, e *Event) error
	// Close は配信先との接続を閉じる。
	Close() error
}

// Emit はイベントを生成して配信する。失敗はログとメトリクスに記録するだけで呼び出し元には返さない。
// 呼び出し元のリクエストがキャンセルされても配信は継続する。
func Emit(ctx context.Context, p Publisher, aggregateID, actorID string, payload Payload) {
	if p == nil {
		return
	}
	e, err := New(ctx, aggregateID, actorID, payload)
	if err != nil {
		slog.ErrorContext(ctx, "イベントの生成に失敗しました", "aggregate_id", aggregateID, "error", err)
		metrics.EventsPublishedTotal.WithLabelValues(payloadType(payload), "error").Inc()
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()
	if err := p.Publish(pubCtx, e); err != nil {
		slog.WarnContext(ctx, "イベントの配信に失敗しました",
			"event_type", e.EventType, "aggregate_id", aggregateID, "error", err)
		metrics.EventsPublishedTotal.WithLabelValues(string(e.EventType), "error").Inc()
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(e.EventType), "ok").Inc()
}

// payloadType はメトリクスのラベルに使うイベント種別を返す。
func payloadType(payload Payload) string {
	if payload == nil {
		return "unknown"
	}
	return string(payload.EventType())
}

// LogPublisher はイベントを構造化ログに出力するだけのPublisher。Kafkaを使わない環境向け。
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher は新しいLogPublisherを生成する。
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish はイベントをinfoレベルで記録する。
func (p *LogPublisher) Publish(ctx context.Context, e *Event) error {
	p.logger.InfoContext(ctx, "ドメインイベント",
		"event_id", e.ID,
		"event_type", e.EventType,
		"aggregate_id", e.AggregateID,
		"actor_id", e.ActorID,
		"data", string(e.Data),
	)
	return nil
}

// Close は何もしない。
func (p *LogPublisher) Close() error {
	return nil
}

// KafkaPublisher はイベントをKafkaトピックに書き込むPublisher。
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher は新しいKafkaPublisherを生成する。
// 同じ集約のイベントが同じパーティションに入るよう、キーはAggregateIDでハッシュ分散する。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish はイベントをJSONにしてKafkaに書き込む。
func (p *KafkaPublisher) Publish(ctx context.Context, e *Event) error {
	msg, err := toMessage(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("Kafkaへの書き込みに失敗: topic=%s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close はライターを閉じる。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// toMessage はイベントをKafkaメッセージに変換する。
func toMessage(e *Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: value,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}
	if e.RequestID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: requestid.HeaderName, Value: []byte(e.RequestID)})
	}
	return msg, nil
}

// Recorder はイベントをメモリに保持するPublisher。テストやローカル検証で使う。
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Publish はイベントを記録する。
func (r *Recorder) Publish(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close は何もしない。
func (r *Recorder) Close() error {
	return nil
}

// Events は記録済みイベントのコピーを返す。
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

// NewPublisher はブローカーが指定されていればKafka、そうでなければログに配信するPublisherを返す。
func NewPublisher(logger *slog.Logger, brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(brokers, topic)
}
