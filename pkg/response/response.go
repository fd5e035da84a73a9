// Package response は全サービス共通のレスポンスエンベロープを提供する。
//
// 成功・失敗を問わず、すべてのレスポンスは
// {"success": bool, "data"?: any, "error"?: {"code", "message"}} の形になる。
package response

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/apperror"
)

// Envelope はレスポンスボディの共通構造。
type Envelope struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Data は成功時のペイロード。
	Data any `json:"data,omitempty"`
	// Error は失敗時のエラー内容。
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody はエラー内容。
type ErrorBody struct {
	// Code は機械可読なエラーコード。
	Code string `json:"code"`
	// Message は人間向けのメッセージ。
	Message string `json:"message"`
}

// Message はメッセージのみを返す成功レスポンスのデータ。
type Message struct {
	Message string `json:"message"`
}

// Success は成功エンベロープを生成する。
func Success(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failure は失敗エンベロープを生成する。
func Failure(code, message string) Envelope {
	return Envelope{Success: false, Error: &ErrorBody{Code: code, Message: message}}
}

// OK は成功レスポンスを書き込む。
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, Success(data))
}

// Fail はエラーをエンベロープに変換して書き込む。
// 分類されていないエラーは詳細をログに出し、500 INTERNAL_ERRORとして返す。
func Fail(c *gin.Context, err error) {
	status, body := resolve(c, err)
	c.JSON(status, body)
}

// Abort はFailと同様にエラーを書き込み、後続のハンドラを中断する。
func Abort(c *gin.Context, err error) {
	status, body := resolve(c, err)
	c.AbortWithStatusJSON(status, body)
}

// resolve はエラーからステータスとボディを決定する。
func resolve(c *gin.Context, err error) (int, Envelope) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Internal("Internal server error", err)
	}
	if appErr.Kind == apperror.KindInternal || appErr.Kind == apperror.KindServiceUnavailable {
		slog.ErrorContext(c.Request.Context(), "リクエスト処理でエラーが発生しました",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Code,
			"error", err,
		)
	}
	return appErr.Status(), Failure(appErr.Code, appErr.Message)
}

// NotFoundHandler は未定義ルート用の404ハンドラを返す。
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Failure(apperror.CodeNotFound, "Route not found"))
	}
}

// MethodNotAllowedHandler は405ハンドラを返す。
func MethodNotAllowedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Failure("METHOD_NOT_ALLOWED", "Method not allowed"))
	}
}
