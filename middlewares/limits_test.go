package middlewares

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestQuota_Exceed429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := gin.New()
	s.Use(func(c *gin.Context) { c.Set("userId", int64(7)); c.Next() })
	s.Use(Quota(rdb, QuotaRule{
		Limit:  2,
		Window: time.Hour,
		KeyFn: func(c *gin.Context) string {
			return fmt.Sprintf("quota:user:%d:day", c.GetInt64("userId"))
		},
	}))
	s.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for i := 1; i <= 2; i++ {
		w := get(s, "/x", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, fmt.Sprintf("%d/2", i), w.Header().Get("X-Quota-Used"))
	}
	assert.Equal(t, http.StatusTooManyRequests, get(s, "/x", "").Code)

	mr.FastForward(time.Hour + time.Second)
	assert.Equal(t, http.StatusOK, get(s, "/x", "").Code)
}

func TestQuota_EmptyKeySkips(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := gin.New()
	s.Use(Quota(rdb, QuotaRule{Limit: 1, Window: time.Hour, KeyFn: func(*gin.Context) string { return "" }}))
	s.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(s, "/x", "").Code)
	}
}

func TestRateLimiter_Burst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(LimiterConfig{RPS: 0.001, Burst: 2, IdleTTL: time.Minute})

	s := gin.New()
	s.Use(rl.Middleware(func(c *gin.Context) string { return "ip:" + c.ClientIP() }))
	s.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	assert.Equal(t, http.StatusOK, get(s, "/x", "").Code)
	assert.Equal(t, http.StatusOK, get(s, "/x", "").Code)
	w := get(s, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(LimiterConfig{RPS: 0.001, Burst: 1, IdleTTL: time.Minute})

	s := gin.New()
	s.Use(rl.Middleware(func(c *gin.Context) string { return "u:" + c.Query("u") }))
	s.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	assert.Equal(t, http.StatusOK, get(s, "/x?u=1", "").Code)
	assert.Equal(t, http.StatusOK, get(s, "/x?u=2", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(s, "/x?u=1", "").Code)
}

func TestRateLimiter_SweepDropsIdle(t *testing.T) {
	rl := NewRateLimiter(LimiterConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	rl.getLimiter("a")
	rl.sweep(time.Now().Add(2 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.buckets)
}
