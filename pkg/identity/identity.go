// Package identity はゲートウェイで検証済みのユーザー識別情報と、
// それをバックエンドサービスへ伝播するための信頼ヘッダーを扱う。
//
// バックエンドはゲートウェイ経由でのみ到達可能であることを前提とし、
// このパッケージが復元したIdentityを認証済みとして扱う。署名の再検証は行わない。
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// HeaderUserID はユーザーIDを伝播するためのHTTPヘッダーキー。
	HeaderUserID = "X-User-ID"
	// HeaderUserRoles はロール一覧（JSON配列）を伝播するためのHTTPヘッダーキー。
	HeaderUserRoles = "X-User-Roles"
	// HeaderInternalToken はゲートウェイとバックエンド間の共有シークレットを運ぶHTTPヘッダーキー。
	HeaderInternalToken = "X-Internal-Token"
)

// Role はユーザーが持ちうるロール。ビット集合として扱う。
type Role uint8

const (
	// RoleUser は一般ユーザーロール。
	RoleUser Role = 1 << iota
	// RoleAdmin は管理者ロール。
	RoleAdmin
)

// allRoles はシリアライズ時の出力順を固定するための一覧。
var allRoles = []Role{RoleUser, RoleAdmin}

// String はロールの文字列表現を返す。
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole は文字列をロールに変換する。未知のロールはfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "admin":
		return RoleAdmin, true
	default:
		return 0, false
	}
}

// Roles はロールの集合。
type Roles uint8

// NewRoles は指定したロールからなる集合を返す。
func NewRoles(roles ...Role) Roles {
	var rs Roles
	for _, r := range roles {
		rs |= Roles(r)
	}
	return rs
}

// DefaultRoles はロールヘッダーが無い場合に適用される集合（userのみ）。
func DefaultRoles() Roles {
	return NewRoles(RoleUser)
}

// RolesFromStrings は文字列スライスから集合を作る。未知のロールは無視する。
func RolesFromStrings(values []string) Roles {
	var rs Roles
	for _, v := range values {
		if r, ok := ParseRole(v); ok {
			rs |= Roles(r)
		}
	}
	return rs
}

// Has は集合がロールを含むかを返す。
func (rs Roles) Has(r Role) bool {
	return rs&Roles(r) != 0
}

// IsAdmin は管理者ロールを含むかを返す。
func (rs Roles) IsAdmin() bool {
	return rs.Has(RoleAdmin)
}

// Strings は集合を決まった順序の文字列スライスに変換する。
func (rs Roles) Strings() []string {
	out := make([]string, 0, len(allRoles))
	for _, r := range allRoles {
		if rs.Has(r) {
			out = append(out, r.String())
		}
	}
	return out
}

// MarshalJSON は集合をJSON配列として出力する。
func (rs Roles) MarshalJSON() ([]byte, error) {
	return json.Marshal(rs.Strings())
}

// UnmarshalJSON はJSON配列から集合を復元する。
func (rs *Roles) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("ロール一覧のデコードに失敗: %w", err)
	}
	*rs = RolesFromStrings(values)
	return nil
}

// EncodeRoles はロール集合をX-User-Rolesヘッダーの値に変換する。
func EncodeRoles(rs Roles) string {
	b, _ := rs.MarshalJSON()
	return string(b)
}

// DecodeRoles はX-User-Rolesヘッダーの値を集合に変換する。
// 空の場合はDefaultRolesを返す。JSON配列でない値はエラーになる。
func DecodeRoles(header string) (Roles, error) {
	if strings.TrimSpace(header) == "" {
		return DefaultRoles(), nil
	}
	var rs Roles
	if err := rs.UnmarshalJSON([]byte(header)); err != nil {
		return 0, err
	}
	return rs, nil
}

// Identity は検証済みのユーザー識別情報。リクエスト単位で生成され、変更されない。
type Identity struct {
	// Subject はユーザーの一意識別子。
	Subject string `json:"userId"`
	// Email はユーザーのメールアドレス。信頼ヘッダーからの復元時は空。
	Email string `json:"email,omitempty"`
	// Roles はユーザーのロール集合。
	Roles Roles `json:"roles"`
}

// IsAdmin は管理者かどうかを返す。
func (id Identity) IsAdmin() bool {
	return id.Roles.IsAdmin()
}

type contextKey struct{}

// WithContext はコンテキストにIdentityを格納する。
func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext はコンテキストからIdentityを取り出す。
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
