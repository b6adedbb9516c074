package middleware

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/interfaces/http/dto"
	"github.com/mandi/backend/tests/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gin": GetRequestID(c),
			"ctx": logger.GetRequestID(c.Request.Context()),
		})
	})

	t.Run("generates an id", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodGet, "/test", nil, nil)
		id := w.Header().Get(RequestIDHeader)
		require.NotEmpty(t, id)
		assert.Contains(t, w.Body.String(), `"gin":"`+id+`"`)
		assert.Contains(t, w.Body.String(), `"ctx":"`+id+`"`)
	})

	t.Run("reuses the client id", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodGet, "/test", nil, map[string]string{RequestIDHeader: "req-42"})
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	})

	t.Run("replaces an oversized id", func(t *testing.T) {
		long := strings.Repeat("x", MaxRequestIDLength+1)
		w := testutil.PerformJSON(t, router, http.MethodGet, "/test", nil, map[string]string{RequestIDHeader: long})
		assert.NotEqual(t, long, w.Header().Get(RequestIDHeader))
		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	})
}

func TestCORS(t *testing.T) {
	newRouter := func(cfg CORSConfig) *gin.Engine {
		router := gin.New()
		router.Use(CORS(cfg))
		router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		return router
	}

	t.Run("default config sets no headers", func(t *testing.T) {
		w := testutil.PerformJSON(t, newRouter(DefaultCORSConfig()), http.MethodGet, "/test", nil, map[string]string{"Origin": "http://evil.example"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allows a listed origin", func(t *testing.T) {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{"http://mandi.local"}
		w := testutil.PerformJSON(t, newRouter(cfg), http.MethodGet, "/test", nil, map[string]string{"Origin": "http://mandi.local"})
		assert.Equal(t, "http://mandi.local", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
		assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("wildcard", func(t *testing.T) {
		cfg := CORSConfig{AllowOrigins: []string{"*"}, MaxAge: time.Minute}
		w := testutil.PerformJSON(t, newRouter(cfg), http.MethodGet, "/test", nil, map[string]string{"Origin": "http://any.example"})
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Vary"))
	})

	t.Run("preflight", func(t *testing.T) {
		w := testutil.PerformJSON(t, newRouter(DefaultCORSConfig()), http.MethodOptions, "/test", nil, map[string]string{"Origin": "http://mandi.local"})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestSecure(t *testing.T) {
	router := gin.New()
	router.Use(Secure())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := testutil.PerformJSON(t, router, http.MethodGet, "/test", nil, nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestBodyLimit(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), BodyLimit(32))
	router.POST("/test", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("small body passes", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodPost, "/test", map[string]string{"a": "b"}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared length over limit", func(t *testing.T) {
		w := testutil.PerformJSON(t, router, http.MethodPost, "/test", map[string]string{"notes": strings.Repeat("n", 64)}, nil)
		resp := testutil.RequireErrorCode(t, w, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge)
		assert.NotEmpty(t, resp.Error.Message)
	})

	t.Run("zero disables", func(t *testing.T) {
		r := gin.New()
		r.Use(BodyLimit(0))
		r.POST("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := testutil.PerformJSON(t, r, http.MethodPost, "/test", map[string]string{"notes": strings.Repeat("n", 64)}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
