// Package config は環境変数から各サービスの設定を読み込む。
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Auth は資格情報の発行・検証とサービス間信頼に関する設定。
type Auth struct {
	// JWTSecret はHS256署名用の共有シークレット。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// JWTExpiresIn は発行するトークンの有効期間。
	JWTExpiresIn time.Duration `env:"JWT_EXPIRES_IN" envDefault:"24h"`
	// JWTIssuer はトークンのissクレーム。
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"ordermesh"`
	// InternalSharedSecret はゲートウェイとバックエンド間の共有シークレット。空なら検査しない。
	InternalSharedSecret string `env:"INTERNAL_SHARED_SECRET"`
}

// Database はリレーショナルストアへの接続設定。
type Database struct {
	// Driver は"sqlite"または"pgx"。
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	// DSN は接続文字列。空の場合はサービスごとの既定値を使う。
	DSN string `env:"DB_DSN"`
	// MaxOpenConns はプールの最大接続数。
	MaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	// ConnMaxIdleTime はアイドル接続を保持する最大時間。
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30s"`
	// ConnectTimeout は起動時の疎通確認のタイムアウト。
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"2s"`
}

// Log はログ出力の設定。
type Log struct {
	// Level はログレベル。
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// Format は"json"または"console"。
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Kafka はイベント配信の設定。Brokersが空ならKafkaは使わずログに出力する。
type Kafka struct {
	// Brokers はKafkaブローカーのアドレス一覧。
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// OrdersTopic は注文イベントのトピック名。
	OrdersTopic string `env:"KAFKA_ORDERS_TOPIC" envDefault:"orders.events"`
	// UsersTopic はユーザーイベントのトピック名。
	UsersTopic string `env:"KAFKA_USERS_TOPIC" envDefault:"users.events"`
}

// Gateway はAPI Gatewayの設定。
type Gateway struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// UsersURL はユーザーサービスのベースURL。
	UsersURL string `env:"USERS_SERVICE_URL" envDefault:"http://localhost:8081"`
	// OrdersURL は注文サービスのベースURL。
	OrdersURL string `env:"ORDERS_SERVICE_URL" envDefault:"http://localhost:8082"`
	// ProxyTimeout はバックエンドへの接続と往復全体のタイムアウト。
	ProxyTimeout time.Duration `env:"PROXY_TIMEOUT" envDefault:"30s"`
	// RateLimitMax はウィンドウあたりの最大リクエスト数（クライアントIPごと）。
	RateLimitMax int `env:"RATE_LIMIT_MAX" envDefault:"100"`
	// RateLimitWindow はレート制限のウィンドウ。
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	// CORSOrigins は許可するオリジン。"*"ですべて許可。
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	Auth Auth
	Log  Log
}

// Users はユーザーサービスの設定。
type Users struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8081"`
	// SeedTestAccounts が真なら起動時に開発用アカウントを投入する。
	SeedTestAccounts bool `env:"USERS_SEED_TEST_ACCOUNTS" envDefault:"true"`
	// BcryptCost はパスワードハッシュのコスト。
	BcryptCost int `env:"USERS_BCRYPT_COST" envDefault:"10"`

	Database Database
	Auth     Auth
	Log      Log
	Kafka    Kafka
}

// Orders は注文サービスの設定。
type Orders struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"8082"`
	// UnitPrice は全商品に適用する単価。
	UnitPrice decimal.Decimal `env:"ORDERS_UNIT_PRICE" envDefault:"100"`
	// StrictTransitions が真なら管理者にも遷移グラフを強制する。
	StrictTransitions bool `env:"ORDERS_STRICT_TRANSITIONS" envDefault:"false"`

	Database Database
	Auth     Auth
	Log      Log
	Kafka    Kafka
}

// parseOptions はdecimal.Decimalなど独自型のパーサーを登録したオプションを返す。
func parseOptions() env.Options {
	return env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(decimal.Decimal{}): func(v string) (any, error) {
				return decimal.NewFromString(v)
			},
		},
	}
}

// LoadGateway はGatewayの設定を読み込む。
func LoadGateway() (Gateway, error) {
	cfg, err := env.ParseAsWithOptions[Gateway](parseOptions())
	if err != nil {
		return Gateway{}, fmt.Errorf("Gateway設定の読み込みに失敗: %w", err)
	}
	return cfg, nil
}

// LoadUsers はユーザーサービスの設定を読み込む。
func LoadUsers() (Users, error) {
	cfg, err := env.ParseAsWithOptions[Users](parseOptions())
	if err != nil {
		return Users{}, fmt.Errorf("ユーザーサービス設定の読み込みに失敗: %w", err)
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaultSQLiteDSN("users.db")
	}
	return cfg, nil
}

// LoadOrders は注文サービスの設定を読み込む。
func LoadOrders() (Orders, error) {
	cfg, err := env.ParseAsWithOptions[Orders](parseOptions())
	if err != nil {
		return Orders{}, fmt.Errorf("注文サービス設定の読み込みに失敗: %w", err)
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = defaultSQLiteDSN("orders.db")
	}
	if cfg.UnitPrice.IsNegative() {
		return Orders{}, fmt.Errorf("ORDERS_UNIT_PRICEは0以上である必要があります: %s", cfg.UnitPrice)
	}
	return cfg, nil
}

// defaultSQLiteDSN はSQLiteファイルの既定DSNを返す。
func defaultSQLiteDSN(file string) string {
	return "file:" + file + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}
