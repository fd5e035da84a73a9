package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/ordermesh/pkg/config"
	"github.com/nao1215/ordermesh/pkg/health"
	"github.com/nao1215/ordermesh/pkg/httpclient"
	"github.com/nao1215/ordermesh/pkg/httpserver"
	"github.com/nao1215/ordermesh/pkg/logger"
	"github.com/nao1215/ordermesh/pkg/metrics"
	"github.com/nao1215/ordermesh/pkg/middleware"
	"github.com/nao1215/ordermesh/pkg/response"
)

// serviceName はログとメトリクスに付与するサービス名。
const serviceName = "gateway"

const (
	// readinessTimeout はreadinessチェック全体のタイムアウト。
	readinessTimeout = 3 * time.Second
	// upstreamHealthTimeout はバックエンドの/healthを確認する際のタイムアウト。
	upstreamHealthTimeout = 2 * time.Second
)

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// routes は転送先の一覧。
	routes []Route
	// verifier は転送前に資格情報を検証する。
	verifier *middleware.Verifier
	// proxy はバックエンドへの転送を行う。
	proxy *Proxy
	// limiter はクライアントIPごとのレート制限。
	limiter *middleware.RateLimiter
	// health はreadinessチェックの登録先。
	health *health.Registry
	// openAPI はJSONに変換済みのOpenAPI定義。
	openAPI []byte
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg config.Gateway, l *slog.Logger) (*Server, error) {
	usersRoute, err := NewRoute("users", "/users", cfg.UsersURL, "/v1/register", "/v1/login")
	if err != nil {
		return nil, err
	}
	ordersRoute, err := NewRoute("orders", "/orders", cfg.OrdersURL)
	if err != nil {
		return nil, err
	}
	routes := []Route{usersRoute, ordersRoute}

	checks := health.NewRegistry()
	for _, r := range routes {
		client := httpclient.New(r.Target.String(),
			httpclient.WithTimeout(upstreamHealthTimeout),
			httpclient.WithInternalToken(cfg.Auth.InternalSharedSecret),
		)
		checks.Add(health.NewUpstreamChecker(r.Name, client))
	}

	return newServer(cfg, l, routes, checks)
}

// newServer は転送先とreadinessチェックからサーバーを組み立てる。
func newServer(cfg config.Gateway, l *slog.Logger, routes []Route, checks *health.Registry) (*Server, error) {
	openAPI, err := loadOpenAPI()
	if err != nil {
		return nil, err
	}

	var verifierOpts []jwt.ParserOption
	if cfg.Auth.JWTIssuer != "" {
		verifierOpts = append(verifierOpts, jwt.WithIssuer(cfg.Auth.JWTIssuer))
	}
	verifier := middleware.NewVerifier(cfg.Auth.JWTSecret, verifierOpts...)

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(logger.AccessLog(l))
	router.Use(metrics.GinMiddleware(serviceName))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(stripIdentityHeaders())

	s := &Server{
		router:   router,
		port:     cfg.Port,
		routes:   routes,
		verifier: verifier,
		proxy:    NewProxy(cfg.ProxyTimeout, cfg.Auth.InternalSharedSecret),
		limiter:  middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		health:   checks,
		openAPI:  openAPI,
	}
	s.setupRoutes()
	return s, nil
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, fmt.Sprintf(":%s", s.port), s.router)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", handleInfo())
	s.router.GET("/health", health.LivenessHandler(serviceName))
	s.router.GET("/ready", health.ReadinessHandler(s.health, readinessTimeout))
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/api-docs", handleDocsUI())
	s.router.GET("/api-docs.json", handleDocsJSON(s.openAPI))

	// バックエンドへの転送はレート制限の対象。認証不要なパス以外はJWTを検証してから転送する
	proxied := s.router.Group("")
	proxied.Use(middleware.RateLimit(s.limiter))
	for _, r := range s.routes {
		g := proxied.Group(r.Prefix, middleware.JWTAuth(s.verifier, r.skipAuth))
		h := s.proxy.Handler(r)
		g.Any("", h)
		g.Any("/*path", h)
	}

	s.router.NoRoute(response.NotFoundHandler())
	s.router.NoMethod(response.MethodNotAllowedHandler())
}

// handleInfo はゲートウェイの概要を返すハンドラを返す。
func handleInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, http.StatusOK, gin.H{
			"service":       "ordermesh API Gateway",
			"documentation": "/api-docs",
			"status":        "online",
		})
	}
}
