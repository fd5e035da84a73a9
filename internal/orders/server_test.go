package orders

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/config"
	"github.com/nao1215/ordermesh/pkg/database"
	"github.com/nao1215/ordermesh/pkg/event"
	"github.com/nao1215/ordermesh/pkg/health"
	"github.com/nao1215/ordermesh/pkg/identity"
	"github.com/nao1215/ordermesh/pkg/logger"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	userRoles  = `["user"]`
	adminRoles = `["user","admin"]`
)

// testEnv はテスト用サーバーと依存をまとめたもの。
type testEnv struct {
	router   *gin.Engine
	recorder *event.Recorder
}

// setupTestServer はテスト用の注文サーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T, mutate ...func(*config.Orders)) *testEnv {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db := database.New(sqlDB, database.DialectSQLite)
	if err := initSchema(context.Background(), db); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	cfg := config.Orders{Port: "0", UnitPrice: decimal.NewFromInt(100)}
	for _, m := range mutate {
		m(&cfg)
	}

	rec := &event.Recorder{}
	l := logger.New(logger.Options{Output: io.Discard})
	s := newServer(cfg, l, db, rec, health.NewRegistry(health.NewSQLChecker("sqlite", sqlDB)))
	return &testEnv{router: s.router, recorder: rec}
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
// userIDが空なら識別ヘッダーを付与しない。rolesが空ならロールヘッダーを付与しない。
func doRequest(router *gin.Engine, method, path, userID, roles string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(identity.HeaderUserID, userID)
	}
	if roles != "" {
		req.Header.Set(identity.HeaderUserRoles, roles)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// envelope はレスポンスエンベロープのテスト用デコード先。
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// orderBody は注文レスポンスのテスト用デコード先。
type orderBody struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"totalAmount"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	Items       []struct {
		Product  string `json:"product"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

// parseEnvelope はレスポンスボディをエンベロープにデコードするヘルパー関数。
func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return env
}

// parseOrder はエンベロープのdataを注文としてデコードするヘルパー関数。
func parseOrder(t *testing.T, w *httptest.ResponseRecorder) orderBody {
	t.Helper()
	env := parseEnvelope(t, w)
	var o orderBody
	if err := json.Unmarshal(env.Data, &o); err != nil {
		t.Fatalf("注文のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return o
}

// assertError はエラーレスポンスのステータスとコードを検証するヘルパー関数。
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, status, w.Body.String())
	}
	env := parseEnvelope(t, w)
	if env.Success || env.Error == nil || env.Error.Code != code {
		t.Errorf("エラーコード不一致: want %s, body=%s", code, w.Body.String())
	}
}

// createOrder はAPI経由で注文を作成するヘルパー関数。
func createOrder(t *testing.T, router *gin.Engine, userID string) orderBody {
	t.Helper()
	w := doRequest(router, http.MethodPost, "/v1/orders", userID, userRoles, map[string]any{
		"items": []map[string]any{{"product": "Concrete Mix", "quantity": 10}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("注文作成に失敗: %d %s", w.Code, w.Body.String())
	}
	return parseOrder(t, w)
}

// setStatus はAPI経由でステータスを変更するヘルパー関数。
func setStatus(router *gin.Engine, id, userID, roles, status string) *httptest.ResponseRecorder {
	return doRequest(router, http.MethodPut, "/v1/orders/"+id+"/status", userID, roles, map[string]string{"status": status})
}

func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("注文を作成すると201とcreatedが返ること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		w := doRequest(env.router, http.MethodPost, "/v1/orders", "user-1", "", map[string]any{
			"items": []map[string]any{{"product": "Concrete Mix", "quantity": 10}},
		})

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		o := parseOrder(t, w)
		if o.Status != "created" {
			t.Errorf("status = %q, want created", o.Status)
		}
		if o.UserID != "user-1" {
			t.Errorf("userId = %q, want user-1", o.UserID)
		}
		if o.TotalAmount != 1000 {
			t.Errorf("totalAmount = %v, want 1000", o.TotalAmount)
		}
		if len(o.Items) != 1 || o.Items[0].Product != "Concrete Mix" || o.Items[0].Quantity != 10 {
			t.Errorf("items = %+v", o.Items)
		}
		if len(env.recorder.Events()) != 1 {
			t.Errorf("イベント数 = %d, want 1", len(env.recorder.Events()))
		}
	})

	t.Run("明細が空の場合は400になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		w := doRequest(env.router, http.MethodPost, "/v1/orders", "user-1", userRoles, map[string]any{"items": []any{}})
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("数量が正でない場合は400になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		w := doRequest(env.router, http.MethodPost, "/v1/orders", "user-1", userRoles, map[string]any{
			"items": []map[string]any{{"product": "Bolt", "quantity": 0}},
		})
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("数量が上限を超える場合は400になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		w := doRequest(env.router, http.MethodPost, "/v1/orders", "user-1", userRoles, map[string]any{
			"items": []map[string]any{{"product": "Bolt", "quantity": 1_000_000_000_000_000}},
		})
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("不正なJSONの場合は400になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString("{"))
		req.Header.Set(identity.HeaderUserID, "user-1")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("識別ヘッダーが無い場合は401になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		w := doRequest(env.router, http.MethodPost, "/v1/orders", "", "", map[string]any{
			"items": []map[string]any{{"product": "Bolt", "quantity": 1}},
		})
		assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("共有シークレット設定時はトークンが無いと401になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t, func(cfg *config.Orders) { cfg.Auth.InternalSharedSecret = "s3cret" })
		w := doRequest(env.router, http.MethodGet, "/v1/orders", "user-1", userRoles, nil)
		assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})
}

func TestHandleGet(t *testing.T) {
	t.Parallel()

	env := setupTestServer(t)
	o := createOrder(t, env.router, "owner-1")

	t.Run("所有者は取得できること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders/"+o.ID, "owner-1", userRoles, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := parseOrder(t, w); got.ID != o.ID {
			t.Errorf("id = %q, want %q", got.ID, o.ID)
		}
	})

	t.Run("他人の注文は404 ORDER_NOT_FOUNDになること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders/"+o.ID, "other-1", userRoles, nil)
		assertError(t, w, http.StatusNotFound, "ORDER_NOT_FOUND")
	})

	t.Run("管理者は他人の注文を取得できること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders/"+o.ID, "admin-1", adminRoles, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("存在しない注文は404になること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders/nonexistent", "owner-1", userRoles, nil)
		assertError(t, w, http.StatusNotFound, "ORDER_NOT_FOUND")
	})

	t.Run("ロールヘッダーが不正な場合は401になること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders/"+o.ID, "owner-1", "admin", nil)
		assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})
}

func TestHandleList(t *testing.T) {
	t.Parallel()

	env := setupTestServer(t)
	for range 3 {
		createOrder(t, env.router, "owner-1")
	}
	createOrder(t, env.router, "owner-2")

	type listBody struct {
		Orders     []orderBody `json:"orders"`
		Pagination struct {
			Page       int `json:"page"`
			Limit      int `json:"limit"`
			Total      int `json:"total"`
			TotalPages int `json:"totalPages"`
		} `json:"pagination"`
	}
	parseList := func(t *testing.T, w *httptest.ResponseRecorder) listBody {
		t.Helper()
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		var body listBody
		if err := json.Unmarshal(parseEnvelope(t, w).Data, &body); err != nil {
			t.Fatalf("一覧のデコードに失敗: %v", err)
		}
		return body
	}

	t.Run("一般ユーザーは自分の注文のみ取得すること", func(t *testing.T) {
		t.Parallel()

		body := parseList(t, doRequest(env.router, http.MethodGet, "/v1/orders?limit=2", "owner-1", userRoles, nil))
		if len(body.Orders) != 2 {
			t.Errorf("件数 = %d, want 2", len(body.Orders))
		}
		if body.Pagination.Total != 3 || body.Pagination.TotalPages != 2 || body.Pagination.Limit != 2 || body.Pagination.Page != 1 {
			t.Errorf("pagination = %+v", body.Pagination)
		}
		for _, o := range body.Orders {
			if o.UserID != "owner-1" {
				t.Errorf("他人の注文が含まれている: %+v", o)
			}
		}
	})

	t.Run("管理者はすべての注文を取得すること", func(t *testing.T) {
		t.Parallel()

		body := parseList(t, doRequest(env.router, http.MethodGet, "/v1/orders", "admin-1", adminRoles, nil))
		if body.Pagination.Total != 4 {
			t.Errorf("total = %d, want 4", body.Pagination.Total)
		}
	})

	t.Run("作成日時の昇順で並ぶこと", func(t *testing.T) {
		t.Parallel()

		body := parseList(t, doRequest(env.router, http.MethodGet, "/v1/orders?sortBy=createdAt&sortOrder=asc", "admin-1", adminRoles, nil))
		for i := 1; i < len(body.Orders); i++ {
			prev, _ := time.Parse(time.RFC3339Nano, body.Orders[i-1].CreatedAt)
			cur, _ := time.Parse(time.RFC3339Nano, body.Orders[i].CreatedAt)
			if cur.Before(prev) {
				t.Errorf("並び順が不正: %s -> %s", body.Orders[i-1].CreatedAt, body.Orders[i].CreatedAt)
			}
		}
	})

	t.Run("未知の並び替えキーはエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		body := parseList(t, doRequest(env.router, http.MethodGet, "/v1/orders?sortBy=password_hash", "owner-1", userRoles, nil))
		if body.Pagination.Total != 3 {
			t.Errorf("total = %d, want 3", body.Pagination.Total)
		}
	})

	t.Run("limit=101は400 VALIDATION_ERRORになること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders?limit=101", "owner-1", userRoles, nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("page=0は400 VALIDATION_ERRORになること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders?page=0", "owner-1", userRoles, nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("オフセットが溢れるpageは400 VALIDATION_ERRORになること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v1/orders?page=100000000000000000&limit=100", "owner-1", userRoles, nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func TestHandleSetStatus(t *testing.T) {
	t.Parallel()

	t.Run("所有者がin_progressを要求すると403 FORBIDDENになること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")

		w := setStatus(env.router, o.ID, "owner-1", userRoles, "in_progress")
		assertError(t, w, http.StatusForbidden, "FORBIDDEN")
	})

	t.Run("所有者はキャンセルでき、再キャンセルは400になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")

		w := setStatus(env.router, o.ID, "owner-1", userRoles, "cancelled")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if got := parseOrder(t, w); got.Status != "cancelled" {
			t.Errorf("status = %q, want cancelled", got.Status)
		}

		w = setStatus(env.router, o.ID, "owner-1", userRoles, "cancelled")
		assertError(t, w, http.StatusBadRequest, "INVALID_STATUS_CHANGE")
	})

	t.Run("他人の注文は403ではなく404になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")

		w := setStatus(env.router, o.ID, "other-1", userRoles, "in_progress")
		assertError(t, w, http.StatusNotFound, "ORDER_NOT_FOUND")
	})

	t.Run("管理者はcancelledの他人の注文をin_progressにできること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")
		if w := setStatus(env.router, o.ID, "owner-1", userRoles, "cancelled"); w.Code != http.StatusOK {
			t.Fatalf("キャンセルに失敗: %s", w.Body.String())
		}

		w := setStatus(env.router, o.ID, "admin-1", adminRoles, "in_progress")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		got := parseOrder(t, w)
		if got.Status != "in_progress" {
			t.Errorf("status = %q, want in_progress", got.Status)
		}
		if got.UserID != o.UserID || got.TotalAmount != o.TotalAmount || got.CreatedAt != o.CreatedAt {
			t.Errorf("ステータス以外が変化している: before=%+v after=%+v", o, got)
		}
	})

	t.Run("列挙外のステータスは400になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")

		w := setStatus(env.router, o.ID, "admin-1", adminRoles, "shipped")
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("厳格モードでは管理者のcreatedからcompletedへの変更が400になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t, func(cfg *config.Orders) { cfg.StrictTransitions = true })
		o := createOrder(t, env.router, "owner-1")

		w := setStatus(env.router, o.ID, "admin-1", adminRoles, "completed")
		assertError(t, w, http.StatusBadRequest, "INVALID_STATUS_CHANGE")
	})
}

func TestHandleDelete(t *testing.T) {
	t.Parallel()

	t.Run("所有者はcreatedの注文を削除できること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")

		w := doRequest(env.router, http.MethodDelete, "/v1/orders/"+o.ID, "owner-1", userRoles, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(parseEnvelope(t, w).Data, &msg)
		if msg.Message != "Order deleted successfully" {
			t.Errorf("message = %q", msg.Message)
		}

		w = doRequest(env.router, http.MethodGet, "/v1/orders/"+o.ID, "owner-1", userRoles, nil)
		assertError(t, w, http.StatusNotFound, "ORDER_NOT_FOUND")
	})

	t.Run("所有者はin_progressの注文を削除できないこと", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")
		if w := setStatus(env.router, o.ID, "admin-1", adminRoles, "in_progress"); w.Code != http.StatusOK {
			t.Fatalf("ステータス変更に失敗: %s", w.Body.String())
		}

		w := doRequest(env.router, http.MethodDelete, "/v1/orders/"+o.ID, "owner-1", userRoles, nil)
		assertError(t, w, http.StatusBadRequest, "INVALID_DELETION")

		w = doRequest(env.router, http.MethodDelete, "/v1/orders/"+o.ID, "admin-1", adminRoles, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("管理者の削除に失敗: %d %s", w.Code, w.Body.String())
		}
	})

	t.Run("他人の注文の削除は404になること", func(t *testing.T) {
		t.Parallel()

		env := setupTestServer(t)
		o := createOrder(t, env.router, "owner-1")

		w := doRequest(env.router, http.MethodDelete, "/v1/orders/"+o.ID, "other-1", userRoles, nil)
		assertError(t, w, http.StatusNotFound, "ORDER_NOT_FOUND")
	})
}

func TestHealthAndRouting(t *testing.T) {
	t.Parallel()

	env := setupTestServer(t)

	t.Run("ヘルスチェックが200を返すこと", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/health", "", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if !parseEnvelope(t, w).Success {
			t.Errorf("success = false: %s", w.Body.String())
		}
	})

	t.Run("readinessがデータベースを確認して200を返すこと", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/ready", "", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
	})

	t.Run("未知のルートは404 NOT_FOUNDのエンベロープになること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/v2/unknown", "", "", nil)
		assertError(t, w, http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("レスポンスにX-Request-IDが付与されること", func(t *testing.T) {
		t.Parallel()

		w := doRequest(env.router, http.MethodGet, "/health", "", "", nil)
		if w.Header().Get("X-Request-ID") == "" {
			t.Error("X-Request-IDが空")
		}
	})
}
