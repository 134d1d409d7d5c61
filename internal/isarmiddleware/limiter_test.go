// file: internal/isarmiddleware/limiter_test.go

package isarmiddleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/luiz158/isar/internal/isarmiddleware"
)

func newLimitedRouter(l *isarmiddleware.IPRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func doRequest(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIPRateLimiter(t *testing.T) {
	t.Run("突发容量内的请求应全部放行", func(t *testing.T) {
		l := isarmiddleware.NewIPRateLimiter(rate.Limit(1), 3, 100, time.Minute)
		r := newLimitedRouter(l)

		for i := 0; i < 3; i++ {
			w := doRequest(r, "10.0.0.1")
			require.Equal(t, http.StatusOK, w.Code, "第 %d 个请求不应被限流", i+1)
		}
	})

	t.Run("超出突发容量后应返回429", func(t *testing.T) {
		l := isarmiddleware.NewIPRateLimiter(rate.Limit(0.01), 2, 100, time.Minute)
		r := newLimitedRouter(l)

		doRequest(r, "10.0.0.2")
		doRequest(r, "10.0.0.2")
		w := doRequest(r, "10.0.0.2")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("不同IP之间的限流互不影响", func(t *testing.T) {
		l := isarmiddleware.NewIPRateLimiter(rate.Limit(0.01), 1, 100, time.Minute)
		r := newLimitedRouter(l)

		require.Equal(t, http.StatusOK, doRequest(r, "10.0.0.3").Code)
		require.Equal(t, http.StatusTooManyRequests, doRequest(r, "10.0.0.3").Code)
		assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.4").Code, "另一个IP的首个请求应放行")
	})

	t.Run("持续超限的IP应被临时锁定", func(t *testing.T) {
		l := isarmiddleware.NewIPRateLimiter(rate.Limit(0.01), 1, 2, time.Minute)
		r := newLimitedRouter(l)

		doRequest(r, "10.0.0.5")
		// 两次违规后触发锁定
		doRequest(r, "10.0.0.5")
		doRequest(r, "10.0.0.5")

		w := doRequest(r, "10.0.0.5")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "锁定")
	})
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(isarmiddleware.RequestID())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	t.Run("未携带ID时应自动生成", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("客户端自带的ID应原样透传", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	})
}
