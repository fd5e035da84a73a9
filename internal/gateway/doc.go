// Package gateway はAPI Gatewayの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、信頼境界として機能する。
// 資格情報（JWT）を検証し、検証済みの識別情報をX-User-ID/X-User-Rolesとして
// バックエンドへ伝播する。クライアントが送ってきた同名のヘッダーは常に破棄する。
//
// /usersと/ordersの接頭辞を取り除いてそれぞれのサービスへ転送し、
// 到達できない場合は502 SERVICE_UNAVAILABLEを返す。
package gateway
