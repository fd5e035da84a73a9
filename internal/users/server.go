package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/internal/users/account"
	usersdb "github.com/nao1215/ordermesh/internal/users/db"
	"github.com/nao1215/ordermesh/pkg/config"
	"github.com/nao1215/ordermesh/pkg/database"
	"github.com/nao1215/ordermesh/pkg/event"
	"github.com/nao1215/ordermesh/pkg/health"
	"github.com/nao1215/ordermesh/pkg/httpserver"
	"github.com/nao1215/ordermesh/pkg/identity"
	"github.com/nao1215/ordermesh/pkg/logger"
	"github.com/nao1215/ordermesh/pkg/metrics"
	"github.com/nao1215/ordermesh/pkg/middleware"
	"github.com/nao1215/ordermesh/pkg/pagination"
	"github.com/nao1215/ordermesh/pkg/response"
)

// serviceName はログとメトリクスに付与するサービス名。
const serviceName = "users"

// readinessTimeout はreadinessチェック全体のタイムアウト。
const readinessTimeout = 2 * time.Second

// Server はユーザーサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。
	db *database.DB
	// accounts はアカウント操作のドメインロジック。
	accounts *account.Service
	// publisher はドメインイベントの配信先。
	publisher event.Publisher
	// health はreadinessチェックの登録先。
	health *health.Registry
}

// NewServer は新しいユーザーサーバーを生成する。
// データベース接続とマイグレーション、開発用アカウントの投入を行う。
func NewServer(ctx context.Context, cfg config.Users, l *slog.Logger) (*Server, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	publisher := event.NewPublisher(l, cfg.Kafka.Brokers, cfg.Kafka.UsersTopic)
	checks := health.NewRegistry(health.NewSQLChecker(string(db.Dialect), db.SQL))
	if len(cfg.Kafka.Brokers) > 0 {
		checks.Add(health.NewKafkaChecker(cfg.Kafka.Brokers))
	}

	s := newServer(cfg, l, db, publisher, checks)
	if cfg.SeedTestAccounts {
		n, err := s.accounts.Seed(ctx, account.DevAccounts)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("開発用アカウントの投入に失敗: %w", err)
		}
		l.Info("開発用アカウントを投入しました", "count", n)
	}
	return s, nil
}

// newServer は初期化済みの依存からサーバーを組み立てる。
func newServer(cfg config.Users, l *slog.Logger, db *database.DB, publisher event.Publisher, checks *health.Registry) *Server {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(logger.AccessLog(l))
	router.Use(metrics.GinMiddleware(serviceName))

	issuer := middleware.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiresIn, cfg.Auth.JWTIssuer)
	s := &Server{
		router:    router,
		port:      cfg.Port,
		db:        db,
		accounts:  account.NewService(usersdb.New(db), issuer, publisher, cfg.BcryptCost),
		publisher: publisher,
		health:    checks,
	}
	s.setupRoutes(cfg.Auth.InternalSharedSecret)
	return s
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, fmt.Sprintf(":%s", s.port), s.router)
}

// Close はイベント配信先とデータベース接続を閉じる。
func (s *Server) Close() error {
	return errors.Join(s.publisher.Close(), s.db.Close())
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(internalSecret string) {
	s.router.GET("/health", health.LivenessHandler(serviceName))
	s.router.GET("/ready", health.ReadinessHandler(s.health, readinessTimeout))
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	{
		// 認証不要
		v1.POST("/register", s.handleRegister())
		v1.POST("/login", s.handleLogin())

		authed := v1.Group("")
		authed.Use(middleware.TrustedIdentity(internalSecret))
		{
			authed.GET("/profile", s.handleGetProfile())
			authed.PUT("/profile", s.handleUpdateProfile())
			// 管理者のみ
			authed.GET("/users", middleware.RequireAdmin(), s.handleListUsers())
		}
	}

	s.router.NoRoute(response.NotFoundHandler())
	s.router.NoMethod(response.MethodNotAllowedHandler())
}

// registerRequest は新規登録リクエストのJSON構造。
type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Name     string `json:"name" binding:"required,min=1,max=100"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// updateProfileRequest はプロフィール更新リクエストのJSON構造。省略したフィールドは変更しない。
type updateProfileRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=1,max=100"`
	Email *string `json:"email" binding:"omitempty,email"`
}

// userResponse はユーザーのJSONレスポンス構造。パスワードハッシュは含めない。
type userResponse struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Roles     identity.Roles `json:"roles"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// sessionResponse は登録・ログインのJSONレスポンス構造。
type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

// listResponse はユーザー一覧のJSON構造。
type listResponse struct {
	Users      []userResponse      `json:"users"`
	Pagination pagination.Response `json:"pagination"`
}

// toUserResponse はユーザーをJSONレスポンスに変換する。
func toUserResponse(u *usersdb.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func toSessionResponse(s *account.Session) sessionResponse {
	return sessionResponse{User: toUserResponse(s.User), Token: s.Token}
}

// handleRegister は新規登録を処理するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := response.BindJSON(c, &req); err != nil {
			response.Fail(c, err)
			return
		}

		sess, err := s.accounts.Register(c.Request.Context(), account.Registration{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
		})
		if err != nil {
			response.Fail(c, err)
			return
		}
		slog.InfoContext(c.Request.Context(), "ユーザーを登録しました", "user_id", sess.User.ID)
		response.OK(c, http.StatusCreated, toSessionResponse(sess))
	}
}

// handleLogin はログインを処理するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := response.BindJSON(c, &req); err != nil {
			response.Fail(c, err)
			return
		}

		sess, err := s.accounts.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			response.Fail(c, err)
			return
		}
		slog.InfoContext(c.Request.Context(), "ユーザーがログインしました", "user_id", sess.User.ID)
		response.OK(c, http.StatusOK, toSessionResponse(sess))
	}
}

// handleGetProfile は自分のプロフィール取得を処理するハンドラを返す。
func (s *Server) handleGetProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.accounts.Profile(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, http.StatusOK, toUserResponse(u))
	}
}

// handleUpdateProfile は自分のプロフィール更新を処理するハンドラを返す。
func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateProfileRequest
		if err := response.BindJSON(c, &req); err != nil {
			response.Fail(c, err)
			return
		}

		u, err := s.accounts.UpdateProfile(c.Request.Context(), middleware.GetUserID(c),
			usersdb.ProfileUpdate{Name: req.Name, Email: req.Email})
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, http.StatusOK, toUserResponse(u))
	}
}

// handleListUsers はユーザー一覧取得を処理するハンドラを返す。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := pagination.Parse(c.Query("page"), c.Query("limit"))
		if err != nil {
			response.Fail(c, err)
			return
		}

		page, err := s.accounts.List(c.Request.Context(), p)
		if err != nil {
			response.Fail(c, err)
			return
		}

		resp := listResponse{
			Users:      make([]userResponse, 0, len(page.Users)),
			Pagination: page.Pagination,
		}
		for _, u := range page.Users {
			resp.Users = append(resp.Users, toUserResponse(u))
		}
		response.OK(c, http.StatusOK, resp)
	}
}
