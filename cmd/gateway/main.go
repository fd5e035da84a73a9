// API Gatewayのエントリポイント。
// 資格情報の検証、識別情報の伝播、バックエンドサービスへのルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、信頼境界となる。
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/ordermesh/internal/gateway"
	"github.com/nao1215/ordermesh/pkg/config"
	"github.com/nao1215/ordermesh/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Gatewayが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadGateway()
	if err != nil {
		return err
	}
	l := logger.Setup(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "gateway"})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server, err := gateway.NewServer(cfg, l)
	if err != nil {
		return err
	}

	l.Info("Gatewayを起動します",
		"port", cfg.Port,
		"users_url", cfg.UsersURL,
		"orders_url", cfg.OrdersURL,
		"proxy_timeout", cfg.ProxyTimeout,
	)
	return server.Run(ctx)
}
