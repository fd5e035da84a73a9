// ユーザーサービスのエントリポイント。
// 登録・ログインによる資格情報の発行と、プロフィール・ユーザー一覧の提供を行う。
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/ordermesh/internal/users"
	"github.com/nao1215/ordermesh/pkg/config"
	"github.com/nao1215/ordermesh/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ユーザーサービスが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadUsers()
	if err != nil {
		return err
	}
	l := logger.Setup(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "users"})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server, err := users.NewServer(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			l.Error("ユーザーサーバーの終了処理に失敗", "error", err)
		}
	}()

	l.Info("ユーザーサービスを起動します", "port", cfg.Port, "db_driver", cfg.Database.Driver)
	return server.Run(ctx)
}
