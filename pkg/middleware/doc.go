// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// ゲートウェイでのJWT検証（Verifier/JWTAuth）、ユーザーサービスでのトークン発行（Issuer）、
// バックエンドでの信頼ヘッダーからの識別情報の復元（TrustedIdentity）、
// リクエストIDの付与、パニックリカバリ、CORS、レート制限を含む。
package middleware
