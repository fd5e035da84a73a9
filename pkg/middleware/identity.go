package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/identity"
	"github.com/nao1215/ordermesh/pkg/response"
)

// TrustedIdentity はゲートウェイが付与した信頼ヘッダーからIdentityを復元するGinミドルウェアを返す。
//
// バックエンドはゲートウェイ経由でのみ到達可能であることを前提とし、署名の再検証は行わない。
// sharedSecretが空でなければX-Internal-Tokenの一致を追加で要求する。
// X-User-IDが無い場合、またはX-User-RolesがJSON配列として解釈できない場合は401で拒否する。
// X-User-Rolesが無い場合はuserロールのみとみなす。
func TrustedIdentity(sharedSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sharedSecret != "" {
			token := c.GetHeader(identity.HeaderInternalToken)
			if subtle.ConstantTimeCompare([]byte(token), []byte(sharedSecret)) != 1 {
				response.Abort(c, apperror.Unauthorized("Request did not come through the gateway"))
				return
			}
		}

		userID := c.GetHeader(identity.HeaderUserID)
		if userID == "" {
			response.Abort(c, apperror.Unauthorized("No identity provided"))
			return
		}

		roles, err := identity.DecodeRoles(c.GetHeader(identity.HeaderUserRoles))
		if err != nil {
			response.Abort(c, apperror.Wrap(apperror.KindUnauthorized, apperror.CodeUnauthorized,
				"Malformed roles header", err))
			return
		}

		setIdentity(c, identity.Identity{Subject: userID, Roles: roles})
		c.Next()
	}
}

// RequireAdmin は管理者ロールを要求するGinミドルウェアを返す。
// TrustedIdentityまたはJWTAuthの後に適用すること。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			response.Abort(c, apperror.Unauthorized("No identity provided"))
			return
		}
		if !id.IsAdmin() {
			response.Abort(c, apperror.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}
