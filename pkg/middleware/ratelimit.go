package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/apperror"
	"github.com/nao1215/ordermesh/pkg/response"
	"golang.org/x/time/rate"
)

// RateLimiter はクライアントごとのトークンバケットを管理する。
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	max       int
	window    time.Duration
	limit     rate.Limit
	lastSweep time.Time
	now       func() time.Time
}

// visitor は1クライアント分のバケット。
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter はwindowあたりmaxRequests件を許可するRateLimiterを生成する。
// バーストはmaxRequests件まで許し、その後はwindow/maxRequestsごとに1件ずつ回復する。
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		max:      maxRequests,
		window:   window,
		limit:    rate.Limit(float64(maxRequests) / window.Seconds()),
		now:      time.Now,
	}
}

// Allow はkeyのリクエストを1件許可できるかを返す。
func (rl *RateLimiter) Allow(key string) bool {
	if rl.max <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.max)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep はwindow以上アクセスの無いクライアントを破棄する。ロック保持中に呼ぶこと。
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) >= rl.window {
			delete(rl.visitors, key)
		}
	}
	rl.lastSweep = now
}

// RateLimit はクライアントIPごとにレート制限を行うGinミドルウェアを返す。
// 超過時は429 RATE_LIMIT_EXCEEDEDを返す。
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("RateLimit-Limit", strconv.Itoa(rl.max))
		if !rl.Allow(c.ClientIP()) {
			retryAfter := int(rl.window.Seconds()) / max(rl.max, 1)
			c.Header("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			response.Abort(c, apperror.RateLimited("Too many requests, please try again later"))
			return
		}
		c.Next()
	}
}
