// Package logger はlog/slogによる構造化ログの初期化と、
// リクエストIDを自動付与するハンドラ、Gin用アクセスログを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options はロガーの設定。
type Options struct {
	// Level はログレベル（debug, info, warn, error）。
	Level string
	// Format は出力形式。"console"でテキスト、それ以外はJSON。
	Format string
	// Service はすべてのログに付与するサービス名。
	Service string
	// Output は出力先。nilの場合は標準出力。
	Output io.Writer
}

// New は設定からロガーを生成する。
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "console") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	l := slog.New(NewRequestIDHandler(handler))
	if opts.Service != "" {
		l = l.With("service", opts.Service)
	}
	return l
}

// Setup はロガーを生成し、slogのデフォルトに設定する。
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

// ParseLevel は文字列をslog.Levelに変換する。不明な値はinfo。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
