// Package users はユーザーサービスのHTTPサーバーを提供する。
//
// 登録とログインは認証不要で、成功時にゲートウェイが検証する資格情報（JWT）を発行する。
// プロフィールとユーザー一覧はゲートウェイが付与したX-User-ID/X-User-Rolesを信頼して要求者を特定する。
// ユーザー一覧は管理者のみ取得できる。
package users
