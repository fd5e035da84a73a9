// 注文サービスのエントリポイント。
// ゲートウェイから転送された注文の作成・一覧・参照・ステータス変更・削除を処理する。
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/ordermesh/internal/orders"
	"github.com/nao1215/ordermesh/pkg/config"
	"github.com/nao1215/ordermesh/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("注文サービスが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOrders()
	if err != nil {
		return err
	}
	l := logger.Setup(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "orders"})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server, err := orders.NewServer(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			l.Error("注文サーバーの終了処理に失敗", "error", err)
		}
	}()

	l.Info("注文サービスを起動します", "port", cfg.Port, "db_driver", cfg.Database.Driver)
	return server.Run(ctx)
}
