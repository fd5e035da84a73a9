// Package apperror は全サービス共通のエラー分類を提供する。
//
// ハンドラはここで定義されたエラーを返し、pkg/response がHTTPステータスと
// エラーコードに変換する。分類されていないエラーはすべてInternalとして扱われる。
package apperror

import (
	"errors"
	"net/http"
)

// Kind はエラーの分類。
type Kind int

const (
	// KindInternal は想定外の障害。
	KindInternal Kind = iota
	// KindUnauthorized は資格情報の欠落・不正、または識別ヘッダーの欠落。
	KindUnauthorized
	// KindForbidden は認証済みだがロールが不足している。
	KindForbidden
	// KindNotFound はリソースが存在しない、または存在を隠している。
	KindNotFound
	// KindValidation は入力が不正。
	KindValidation
	// KindConflict は一意制約違反や同時更新の衝突。
	KindConflict
	// KindServiceUnavailable は下流サービスに到達できない。
	KindServiceUnavailable
	// KindRateLimited はレート制限超過。
	KindRateLimited
)

// Status はKindに対応するHTTPステータスコードを返す。
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindServiceUnavailable:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// エラーコード。レスポンスエンベロープのerror.codeに入る。
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidStatusChange = "INVALID_STATUS_CHANGE"
	CodeInvalidDeletion     = "INVALID_DELETION"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeUserExists          = "USER_EXISTS"
	CodeEmailTaken          = "EMAIL_TAKEN"
	CodeConflict            = "CONFLICT"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error は分類済みのアプリケーションエラー。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Code はクライアントに返すエラーコード。
	Code string
	// Message はクライアントに返すメッセージ。
	Message string
	// Err は原因となったエラー。クライアントには返さない。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Status はHTTPステータスコードを返す。
func (e *Error) Status() int {
	return e.Kind.Status()
}

// New は新しいErrorを生成する。
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap は原因エラー付きのErrorを生成する。
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// As はerrのチェーンから*Errorを取り出す。
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf はerrの分類を返す。分類されていないエラーはKindInternal。
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Unauthorized は401エラーを生成する。
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, CodeUnauthorized, message)
}

// Forbidden は403エラーを生成する。
func Forbidden(message string) *Error {
	return New(KindForbidden, CodeForbidden, message)
}

// NotFound は404エラーを生成する。
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Validation は400 VALIDATION_ERRORを生成する。
func Validation(message string) *Error {
	return New(KindValidation, CodeValidation, message)
}

// BadRequest は任意のコードを持つ400エラーを生成する。
func BadRequest(code, message string) *Error {
	return New(KindValidation, code, message)
}

// Conflict は409エラーを生成する。
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// ServiceUnavailable は502エラーを生成する。
func ServiceUnavailable(message string, err error) *Error {
	return Wrap(KindServiceUnavailable, CodeServiceUnavailable, message, err)
}

// RateLimited は429エラーを生成する。
func RateLimited(message string) *Error {
	return New(KindRateLimited, CodeRateLimitExceeded, message)
}

// Internal は500エラーを生成する。errはログにのみ出力される。
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, CodeInternal, message, err)
}
