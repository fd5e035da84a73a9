package gateway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/httpclient"
	"github.com/nao1215/ordermesh/pkg/identity"
	"github.com/nao1215/ordermesh/pkg/metrics"
	"github.com/nao1215/ordermesh/pkg/response"
)

// hopByHopHeaders は転送しないホップ間ヘッダー。
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// identityHeaders はゲートウェイだけが設定できる信頼ヘッダー。クライアントからの値は常に破棄する。
var identityHeaders = []string{
	identity.HeaderUserID,
	identity.HeaderUserRoles,
	identity.HeaderInternalToken,
}

// Route はパス接頭辞と転送先バックエンドの対応。
type Route struct {
	// Name はバックエンド名。エラーメッセージとメトリクスのラベルに使う。
	Name string
	// Prefix はゲートウェイ側のパス接頭辞。転送時に取り除く。
	Prefix string
	// Target は転送先のベースURL。
	Target *url.URL
	// Public は認証不要なパス（接頭辞を除いた後のパス）。
	Public []string
}

// NewRoute は新しいRouteを生成する。targetはスキームとホストを含む絶対URLであること。
func NewRoute(name, prefix, target string, public ...string) (Route, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Route{}, fmt.Errorf("%sの転送先URLが不正: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Route{}, fmt.Errorf("%sの転送先URLにはスキームとホストが必要: %q", name, target)
	}
	if !strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/") {
		return Route{}, fmt.Errorf("%sのパス接頭辞は/で始まり/で終わらないこと: %q", name, prefix)
	}
	return Route{Name: name, Prefix: prefix, Target: u, Public: public}, nil
}

// rewrite はゲートウェイのパスから接頭辞を取り除く。接頭辞のみの場合は"/"。
func (r Route) rewrite(path string) string {
	rest := strings.TrimPrefix(path, r.Prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// isPublic は接頭辞を除いたパスが認証不要かを返す。
func (r Route) isPublic(path string) bool {
	return slices.Contains(r.Public, path)
}

// upstreamURL は転送先の完全なURLを組み立てる。クエリ文字列はそのまま引き継ぐ。
func (r Route) upstreamURL(path, rawQuery string) string {
	u := *r.Target
	u.Path = strings.TrimSuffix(r.Target.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = rawQuery
	return u.String()
}

// skipAuth はJWTAuthに渡す判定関数。認証不要なパスなら真を返す。
func (r Route) skipAuth(c *gin.Context) bool {
	return r.isPublic(r.rewrite(c.Request.URL.Path))
}

// unavailableMessage は転送失敗時のメッセージを返す。
func (r Route) unavailableMessage() string {
	if r.Name == "" {
		return "Service is unavailable"
	}
	return strings.ToUpper(r.Name[:1]) + r.Name[1:] + " service is unavailable"
}

// Proxy はリクエストコンテキストの識別情報を信頼ヘッダーに載せてバックエンドへ転送する。
// 資格情報の検証は前段のmiddleware.JWTAuthが行う。
type Proxy struct {
	client        *http.Client
	internalToken string
}

// NewProxy は新しいProxyを生成する。
// timeoutは接続とレスポンスボディの読み取りまでを含む往復全体に適用する。リトライはしない。
func NewProxy(timeout time.Duration, internalToken string) *Proxy {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	return &Proxy{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			// リダイレクトは追わずにクライアントへ返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		internalToken: internalToken,
	}
}

// Handler はrouteへ転送するハンドラを返す。
func (p *Proxy) Handler(route Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := route.rewrite(c.Request.URL.Path)
		ctx := c.Request.Context()

		req, err := http.NewRequestWithContext(ctx, c.Request.Method, route.upstreamURL(path, c.Request.URL.RawQuery), c.Request.Body)
		if err != nil {
			response.Fail(c, apperror.Internal("Failed to build upstream request", err))
			return
		}
		req.ContentLength = c.Request.ContentLength
		copyHeader(req.Header, c.Request.Header)
		for _, h := range identityHeaders {
			req.Header.Del(h)
		}
		httpclient.Propagate(ctx, req.Header)
		if p.internalToken != "" {
			req.Header.Set(identity.HeaderInternalToken, p.internalToken)
		}
		appendForwardedFor(req.Header, c.ClientIP())

		start := time.Now()
		resp, err := p.client.Do(req)
		metrics.UpstreamRequestDuration.WithLabelValues(route.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(route.Name, "error").Inc()
			response.Fail(c, apperror.ServiceUnavailable(route.unavailableMessage(), err))
			return
		}
		defer resp.Body.Close()
		metrics.UpstreamRequestsTotal.WithLabelValues(route.Name, fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()

		dst := c.Writer.Header()
		for k, vv := range resp.Header {
			if isHopByHop(k) {
				continue
			}
			dst[k] = append([]string(nil), vv...)
		}
		c.Status(resp.StatusCode)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil && !errors.Is(err, ctx.Err()) {
			// ヘッダー送信後のためステータスは変更できない
			slog.WarnContext(ctx, "バックエンドのレスポンス転送が途中で失敗しました",
				"upstream", route.Name, "error", err)
		}
	}
}

// copyHeader はホップ間ヘッダーを除いてヘッダーを複製する。
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(key string) bool {
	return slices.Contains(hopByHopHeaders, http.CanonicalHeaderKey(key))
}

// appendForwardedFor はX-Forwarded-ForにクライアントIPを追記する。
func appendForwardedFor(h http.Header, clientIP string) {
	if clientIP == "" {
		return
	}
	if prior := h.Get("X-Forwarded-For"); prior != "" {
		clientIP = prior + ", " + clientIP
	}
	h.Set("X-Forwarded-For", clientIP)
}

// stripIdentityHeaders はクライアントが送ってきた信頼ヘッダーを取り除くGinミドルウェアを返す。
// 認証不要なルートでも偽装されたX-User-IDがバックエンドに届かないようにする。
func stripIdentityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range identityHeaders {
			c.Request.Header.Del(h)
		}
		c.Next()
	}
}
