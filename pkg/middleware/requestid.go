package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/requestid"
)

// maxRequestIDLength は受け入れるX-Request-IDの最大長。
const maxRequestIDLength = 128

// RequestID はX-Request-IDを引き継ぐか新規に発行するGinミドルウェアを返す。
// IDはリクエストコンテキスト、リクエストヘッダー（転送用）、レスポンスヘッダーに設定する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestid.HeaderName)
		if !validRequestID(id) {
			id = requestid.NewID()
		}

		c.Request.Header.Set(requestid.HeaderName, id)
		c.Request = c.Request.WithContext(requestid.WithID(c.Request.Context(), id))
		c.Header(requestid.HeaderName, id)
		c.Next()
	}
}

// validRequestID はヘッダー値としてそのまま引き継げるIDかどうかを返す。
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
