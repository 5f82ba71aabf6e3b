package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(l *IPRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func doGet(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	r := newRouter(NewIPRateLimiter(3, time.Hour))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doGet(r, "10.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "10.0.0.1"))

	// 不同IP互不影响
	assert.Equal(t, http.StatusOK, doGet(r, "10.0.0.2"))
}

func TestRateLimiterUpdate(t *testing.T) {
	l := NewIPRateLimiter(1, time.Hour)
	r := newRouter(l)

	assert.Equal(t, http.StatusOK, doGet(r, "10.0.0.3"))
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "10.0.0.3"))

	l.Update(100, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, http.StatusOK, doGet(r, "10.0.0.3"))
}

func TestCORSAllowsWhitelistedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
