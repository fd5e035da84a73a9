// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// ゲートウェイが下流サービスのヘルスチェックを行う際などに使用する。
// コンテキストに格納されたリクエストIDと識別情報を信頼ヘッダーとして自動的に伝播する。
package httpclient
