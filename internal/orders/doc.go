// Package orders は注文サービスのHTTPサーバーを提供する。
//
// ゲートウェイが付与したX-User-ID/X-User-Rolesを信頼して要求者を特定し、
// 注文の作成・一覧・参照・ステータス変更・削除をorder.Serviceに委譲する。
// 他人の注文へのアクセスは存在しない注文と同じく404 ORDER_NOT_FOUNDになる。
package orders
