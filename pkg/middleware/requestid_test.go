package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/requestid"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, requestid.FromContext(c.Request.Context())+"|"+c.Request.Header.Get(requestid.HeaderName))
		})
		return router
	}

	t.Run("受信したIDを引き継ぐこと", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.HeaderName, "abc-123")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Body.String() != "abc-123|abc-123" {
			t.Errorf("body = %q", w.Body.String())
		}
		if got := w.Header().Get(requestid.HeaderName); got != "abc-123" {
			t.Errorf("X-Request-ID = %q", got)
		}
	})

	t.Run("IDが無い場合は新規に発行すること", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		got := w.Header().Get(requestid.HeaderName)
		if len(got) != 36 {
			t.Errorf("X-Request-ID = %q, UUIDであるべき", got)
		}
		if w.Body.String() != got+"|"+got {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("長すぎるIDは置き換えること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.HeaderName, strings.Repeat("a", 200))
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if got := w.Header().Get(requestid.HeaderName); len(got) != 36 {
			t.Errorf("X-Request-ID = %q", got)
		}
	})
}
