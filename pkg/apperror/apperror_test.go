package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindServiceUnavailable, http.StatusBadGateway},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Status(), "kind=%d", tt.kind)
	}
}

func TestAs(t *testing.T) {
	t.Parallel()

	t.Run("ラップされたErrorを取り出せること", func(t *testing.T) {
		t.Parallel()

		base := NotFound(CodeOrderNotFound, "Order not found")
		err := fmt.Errorf("注文の取得に失敗: %w", base)

		got, ok := As(err)
		assert.True(t, ok)
		assert.Equal(t, CodeOrderNotFound, got.Code)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("分類されていないエラーはInternalになること", func(t *testing.T) {
		t.Parallel()

		_, ok := As(errors.New("boom"))
		assert.False(t, ok)
		assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	})

	t.Run("原因エラーをUnwrapできること", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("dial tcp: connection refused")
		err := ServiceUnavailable("orders service is unavailable", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "SERVICE_UNAVAILABLE")
	})
}
