package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/identity"
	"github.com/nao1215/ordermesh/pkg/response"
)

var (
	// ErrMissingAuthorization はAuthorizationヘッダーが無いことを表す。
	ErrMissingAuthorization = errors.New("authorization header is missing")
	// ErrMalformedAuthorization はAuthorizationヘッダーがBearer形式でないことを表す。
	ErrMalformedAuthorization = errors.New("authorization header is not a bearer token")
)

// contextKeyIdentity はGinコンテキストにIdentityを格納するためのキー。
const contextKeyIdentity = "identity"

// Claims はJWTトークンのクレーム（ペイロード）を表す。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"userId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Roles はユーザーのロール一覧。
	Roles []string `json:"roles"`
}

// Issuer はJWTトークンを発行する。ユーザーサービスが登録・ログイン時に使う。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIssuer は新しいIssuerを生成する。ttlはトークンの有効期間。
func NewIssuer(secret string, ttl time.Duration, issuer string) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// Issue はIdentityからHS256で署名したトークンを生成する。
func (i *Issuer) Issue(id identity.Identity) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.issuer,
		},
		UserID: id.Subject,
		Email:  id.Email,
		Roles:  id.Roles.Strings(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verifier はJWTトークンを検証してIdentityを取り出す。副作用は持たない。
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier は新しいVerifierを生成する。
// HS256以外の署名方式と、expクレームの無いトークンは拒否する。
func NewVerifier(secret string, opts ...jwt.ParserOption) *Verifier {
	parserOpts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}, opts...)
	return &Verifier{secret: []byte(secret), parser: jwt.NewParser(parserOpts...)}
}

// Verify は生のトークン文字列を検証する。
// 失敗時は常にUnauthorizedを返し、部分的なIdentityは返さない。
func (v *Verifier) Verify(raw string) (identity.Identity, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return identity.Identity{}, apperror.Wrap(apperror.KindUnauthorized, apperror.CodeUnauthorized,
			"Invalid or expired token", err)
	}
	if claims.UserID == "" {
		return identity.Identity{}, apperror.Unauthorized("Invalid or expired token")
	}

	roles := identity.RolesFromStrings(claims.Roles)
	if claims.Roles == nil {
		roles = identity.DefaultRoles()
	}
	return identity.Identity{Subject: claims.UserID, Email: claims.Email, Roles: roles}, nil
}

// ExtractBearer はAuthorizationヘッダーの値から"Bearer "以降のトークンを取り出す。
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthorization
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}

// Authenticate はAuthorizationヘッダーの値を検証してIdentityを返す。
// ヘッダーの欠落・形式不正と署名・期限の不正はどちらもUnauthorizedとして返す。
func (v *Verifier) Authenticate(header string) (identity.Identity, error) {
	raw, err := ExtractBearer(header)
	if err != nil {
		return identity.Identity{}, apperror.Wrap(apperror.KindUnauthorized, apperror.CodeUnauthorized,
			"Authentication required", err)
	}
	return v.Verify(raw)
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// skipのいずれかが真を返すリクエストは検証せずに通す。
// 検証に成功した場合、GinコンテキストとリクエストコンテキストにIdentityを設定する。
func JWTAuth(v *Verifier, skip ...func(*gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, s := range skip {
			if s(c) {
				c.Next()
				return
			}
		}

		id, err := v.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			response.Abort(c, err)
			return
		}

		setIdentity(c, id)
		c.Next()
	}
}

// setIdentity はGinコンテキストとリクエストコンテキストの両方にIdentityを設定する。
func setIdentity(c *gin.Context, id identity.Identity) {
	c.Set(contextKeyIdentity, id)
	c.Request = c.Request.WithContext(identity.WithContext(c.Request.Context(), id))
}

// GetIdentity はGinコンテキストからIdentityを取得する。
// JWTAuthまたはTrustedIdentityミドルウェアが事前に適用されている必要がある。
func GetIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

// GetUserID はGinコンテキストからユーザーIDを取得する。未認証なら空文字列。
func GetUserID(c *gin.Context) string {
	id, _ := GetIdentity(c)
	return id.Subject
}
