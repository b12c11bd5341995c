package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCache(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/api/fills", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/api/broken", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	w := get(r, "/api/fills", nil)
	assert.Equal(t, "MISS", w.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())

	w = get(r, "/api/fills", nil)
	assert.Equal(t, "HIT", w.Header().Get(CacheHeader))
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	w = get(r, "/api/fills", map[string]string{"Cache-Control": "no-cache"})
	assert.JSONEq(t, `{"calls":2}`, w.Body.String())

	w = get(r, "/api/fills?limit=1", nil)
	assert.Equal(t, "MISS", w.Header().Get(CacheHeader), "query string is part of the key")

	get(r, "/api/broken", nil)
	w = get(r, "/api/broken", nil)
	assert.Equal(t, "MISS", w.Header().Get(CacheHeader), "errors are not cached")
}

func TestRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2)
	r := gin.New()
	r.Use(RateLimiter(limiter))
	r.GET("/api/state", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/api/state", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/state", nil).Code)
	w := get(r, "/api/state", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestIPRateLimiter_Prune(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	limiter.now = func() time.Time { return now }

	limiter.GetLimiter("192.0.2.1")
	now = now.Add(10 * time.Minute)
	limiter.GetLimiter("192.0.2.2")

	assert.Equal(t, 1, limiter.Prune(5*time.Minute))
	assert.Equal(t, 1, limiter.Len())
}

func TestIPRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	limiter.now = func() time.Time { return now }

	limiter.GetLimiter("192.0.2.1")
	limiter.GetLimiter("192.0.2.2")
	now = now.Add(25 * time.Minute)
	limiter.GetLimiter("192.0.2.3")

	assert.Equal(t, 1, limiter.Len())
}
