package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RoomChat/service/ratelimit"
	tsec "RoomChat/tools/security"
)

func TestManagerRunsInOrderAndStopsOnAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var order []string
	m := NewManager()
	m.Add(func(c *gin.Context) { order = append(order, "a") })
	m.Add(func(c *gin.Context) { order = append(order, "b") })

	r := gin.New()
	r.Use(m.Use())
	r.GET("/x", func(c *gin.Context) { order = append(order, "handler") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)

	// abort 截断后续中间件与 handler
	order = nil
	m.Add(func(c *gin.Context) { c.AbortWithStatus(http.StatusTeapot) })
	m.Add(func(c *gin.Context) { order = append(order, "unreachable") })

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestManagerClear(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := NewManager()
	m.Add(func(c *gin.Context) { c.AbortWithStatus(http.StatusTeapot) })
	m.Clear()

	r := gin.New()
	r.Use(m.Use())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDGeneratedAndPreserved(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "rid-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "rid-123", w.Header().Get(HeaderRequestID), "incoming id passes through")
}

// 全局 Manager + 路由级鉴权/准入的完整组装，和 main 的布线一致。
func TestManagerWithAuthAndAdmission(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Close)
	limiter := ratelimit.NewLimiter(store)
	rules := ratelimit.NewRuleSet(ratelimit.Rule{Window: time.Minute, Max: 1}, nil, nil)
	admission := RateLimit(limiter, rules)

	mgr := NewManager()
	mgr.Add(RequestID())

	opts := tsec.Options{Secret: []byte("test-secret"), Alg: "HS256", TTL: time.Hour}
	r := gin.New()
	r.Use(gin.Recovery(), mgr.Use())
	GET(r, "/api/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") },
		RouteOpt{IsAuth: true, JWT: opts, Before: []gin.HandlerFunc{admission}})

	do := func(token, xff string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		r.ServeHTTP(w, req)
		return w
	}

	tokenA, _, err := tsec.Generate(opts, "user-a", nil)
	require.NoError(t, err)
	tokenB, _, err := tsec.Generate(opts, "user-b", nil)
	require.NoError(t, err)

	w := do(tokenA, "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	// 鉴权在准入之前，限流按 user 计：换 IP 也挡得住
	w = do(tokenA, "10.0.0.9")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 另一个用户不受影响
	w = do(tokenB, "10.0.0.9")
	assert.Equal(t, http.StatusOK, w.Code)

	// 无 token 根本到不了准入
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouteOptAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	opts := tsec.Options{Secret: []byte("test-secret"), Alg: "HS256", TTL: time.Hour}
	r := gin.New()
	GET(r, "/open", func(c *gin.Context) { c.String(http.StatusOK, "ok") }, RouteOpt{})
	GET(r, "/locked", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID"))
	}, RouteOpt{IsAuth: true, JWT: opts})

	// 无鉴权路由直接可达
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// 鉴权路由：无 token 401
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/locked", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 有效 token 通过并注入 user id
	token, _, err := tsec.Generate(opts, "user-1", nil)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/locked", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())
}
