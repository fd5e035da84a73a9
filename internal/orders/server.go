package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ordersdb "github.com/nao1215/ordermesh/internal/orders/db"
	"github.com/nao1215/ordermesh/internal/orders/order"
	"github.com/nao1215/ordermesh/pkg/config"
	"github.com/nao1215/ordermesh/pkg/database"
	"github.com/nao1215/ordermesh/pkg/event"
	"github.com/nao1215/ordermesh/pkg/health"
	"github.com/nao1215/ordermesh/pkg/httpserver"
	"github.com/nao1215/ordermesh/pkg/logger"
	"github.com/nao1215/ordermesh/pkg/metrics"
	"github.com/nao1215/ordermesh/pkg/middleware"
	"github.com/nao1215/ordermesh/pkg/pagination"
	"github.com/nao1215/ordermesh/pkg/response"
)

// serviceName はログとメトリクスに付与するサービス名。
const serviceName = "orders"

// readinessTimeout はreadinessチェック全体のタイムアウト。
const readinessTimeout = 2 * time.Second

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。
	db *database.DB
	// service は注文のドメインロジック。
	service *order.Service
	// publisher はドメインイベントの配信先。
	publisher event.Publisher
	// health はreadinessチェックの登録先。
	health *health.Registry
}

// NewServer は新しい注文サーバーを生成する。
// データベース接続とマイグレーション、イベント配信先の初期化を行う。
func NewServer(ctx context.Context, cfg config.Orders, l *slog.Logger) (*Server, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	publisher := event.NewPublisher(l, cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic)
	checks := health.NewRegistry(health.NewSQLChecker(string(db.Dialect), db.SQL))
	if len(cfg.Kafka.Brokers) > 0 {
		checks.Add(health.NewKafkaChecker(cfg.Kafka.Brokers))
	}

	return newServer(cfg, l, db, publisher, checks), nil
}

// newServer は初期化済みの依存からサーバーを組み立てる。
func newServer(cfg config.Orders, l *slog.Logger, db *database.DB, publisher event.Publisher, checks *health.Registry) *Server {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(logger.AccessLog(l))
	router.Use(metrics.GinMiddleware(serviceName))

	s := &Server{
		router: router,
		port:   cfg.Port,
		db:     db,
		service: order.NewService(
			ordersdb.New(db),
			order.FlatPrice(cfg.UnitPrice),
			order.Policy{Strict: cfg.StrictTransitions},
			publisher,
		),
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
	v1.Use(middleware.TrustedIdentity(internalSecret))
	{
		orders := v1.Group("/orders")
		{
			// 注文作成
			orders.POST("", s.handleCreate())
			// 注文一覧取得
			orders.GET("", s.handleList())
			// 注文詳細取得
			orders.GET("/:id", s.handleGet())
			// ステータス変更
			orders.PUT("/:id/status", s.handleSetStatus())
			// 注文削除
			orders.DELETE("/:id", s.handleDelete())
		}
	}

	s.router.NoRoute(response.NotFoundHandler())
	s.router.NoMethod(response.MethodNotAllowedHandler())
}

// itemRequest は注文明細のJSON構造。
type itemRequest struct {
	// Product は商品名。
	Product string `json:"product"`
	// Quantity は数量。
	Quantity int `json:"quantity"`
}

// createOrderRequest は注文作成リクエストのJSON構造。
type createOrderRequest struct {
	// Items は注文明細。
	Items []itemRequest `json:"items"`
}

// setStatusRequest はステータス変更リクエストのJSON構造。
type setStatusRequest struct {
	// Status は変更後のステータス。
	Status string `json:"status"`
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Items       []order.Item `json:"items"`
	Status      order.Status `json:"status"`
	TotalAmount float64      `json:"totalAmount"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

// listResponse は注文一覧のJSON構造。
type listResponse struct {
	Orders     []orderResponse     `json:"orders"`
	Pagination pagination.Response `json:"pagination"`
}

// toOrderResponse は注文をJSONレスポンスに変換する。
func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		UserID:      o.OwnerID,
		Items:       o.Items,
		Status:      o.Status,
		TotalAmount: o.TotalAmount.InexactFloat64(),
		CreatedAt:   o.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   o.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// requester はGinコンテキストのIdentityから要求者を組み立てる。
func requester(c *gin.Context) order.Requester {
	id, _ := middleware.GetIdentity(c)
	return order.Requester{ID: id.Subject, Admin: id.IsAdmin()}
}

// handleCreate は注文作成を処理するハンドラを返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if err := response.BindJSON(c, &req); err != nil {
			response.Fail(c, err)
			return
		}

		items := make([]order.Item, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, order.Item{Product: it.Product, Quantity: it.Quantity})
		}

		o, err := s.service.Create(c.Request.Context(), requester(c).ID, items)
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, http.StatusCreated, toOrderResponse(o))
	}
}

// handleList は注文一覧取得を処理するハンドラを返す。
// 一般ユーザーは自分の注文のみ、管理者はすべての注文を取得できる。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := order.ParseListQuery(c.Query("page"), c.Query("limit"), c.Query("sortBy"), c.Query("sortOrder"))
		if err != nil {
			response.Fail(c, err)
			return
		}

		page, err := s.service.List(c.Request.Context(), requester(c), q)
		if err != nil {
			response.Fail(c, err)
			return
		}

		resp := listResponse{
			Orders:     make([]orderResponse, 0, len(page.Orders)),
			Pagination: page.Pagination,
		}
		for _, o := range page.Orders {
			resp.Orders = append(resp.Orders, toOrderResponse(o))
		}
		response.OK(c, http.StatusOK, resp)
	}
}

// handleGet は注文詳細取得を処理するハンドラを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := s.service.Get(c.Request.Context(), requester(c), c.Param("id"))
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, http.StatusOK, toOrderResponse(o))
	}
}

// handleSetStatus はステータス変更を処理するハンドラを返す。
func (s *Server) handleSetStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setStatusRequest
		if err := response.BindJSON(c, &req); err != nil {
			response.Fail(c, err)
			return
		}

		o, err := s.service.SetStatus(c.Request.Context(), requester(c), c.Param("id"), req.Status)
		if err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, http.StatusOK, toOrderResponse(o))
	}
}

// handleDelete は注文削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.service.Delete(c.Request.Context(), requester(c), c.Param("id")); err != nil {
			response.Fail(c, err)
			return
		}
		response.OK(c, http.StatusOK, response.Message{Message: "Order deleted successfully"})
	}
}
