package health

import (
	"context"
	"database/sql"

	"github.com/nao1215/ordermesh/pkg/httpclient"
	"github.com/segmentio/kafka-go"
)

// SQLChecker はデータベースへの疎通を確認する。
type SQLChecker struct {
	name string
	db   *sql.DB
}

// NewSQLChecker は新しいSQLCheckerを生成する。nameにはドライバ名などを渡す。
func NewSQLChecker(name string, db *sql.DB) *SQLChecker {
	return &SQLChecker{name: name, db: db}
}

// Name はチェック名を返す。
func (c *SQLChecker) Name() string {
	return c.name
}

// Check はPingを実行する。
func (c *SQLChecker) Check(ctx context.Context) Result {
	if err := c.db.PingContext(ctx); err != nil {
		return Result{Status: StatusDown, Message: err.Error()}
	}
	return Result{Status: StatusUp}
}

// UpstreamChecker は下流サービスの/healthを確認する。
type UpstreamChecker struct {
	name   string
	client *httpclient.Client
}

// NewUpstreamChecker は新しいUpstreamCheckerを生成する。
func NewUpstreamChecker(name string, client *httpclient.Client) *UpstreamChecker {
	return &UpstreamChecker{name: name, client: client}
}

// Name はチェック名を返す。
func (c *UpstreamChecker) Name() string {
	return c.name
}

// Check は下流の/healthにGETを送り、2xxならupとする。
func (c *UpstreamChecker) Check(ctx context.Context) Result {
	if err := c.client.GetJSON(ctx, "/health", nil); err != nil {
		return Result{Status: StatusDown, Message: err.Error()}
	}
	return Result{Status: StatusUp}
}

// KafkaChecker はKafkaブローカーへの疎通を確認する。
type KafkaChecker struct {
	brokers []string
}

// NewKafkaChecker は新しいKafkaCheckerを生成する。
func NewKafkaChecker(brokers []string) *KafkaChecker {
	return &KafkaChecker{brokers: brokers}
}

// Name は"kafka"を返す。
func (c *KafkaChecker) Name() string {
	return "kafka"
}

// Check はいずれかのブローカーに接続できればupとする。
func (c *KafkaChecker) Check(ctx context.Context) Result {
	for _, broker := range c.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			_ = conn.Close()
			return Result{Status: StatusUp}
		}
	}
	return Result{Status: StatusDown, Message: "all brokers unreachable"}
}
