// Package requestid はサービス間で引き継ぐリクエストIDを扱う。
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// HeaderName はリクエストIDを運ぶHTTPヘッダーキー。Kafkaメッセージのヘッダーにも同じキーを使う。
const HeaderName = "X-Request-ID"

type contextKey struct{}

// FromContext はコンテキストからリクエストIDを取り出す。無ければ空文字列。
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// WithID はリクエストIDを格納したコンテキストを返す。
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// NewID は新しいリクエストID（UUID v4）を生成する。
func NewID() string {
	return uuid.New().String()
}
