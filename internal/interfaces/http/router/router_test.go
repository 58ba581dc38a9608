package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterRegister(t *testing.T) {
	r := NewRouter(gin.New())

	r.Register(NewDomainGroup("sync", "/sync"))

	assert.Len(t, r.registrars, 1)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	group := NewDomainGroup("system", "/system")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.Register(group)
	r.Setup()

	w := serve(engine, "GET", "/api/v1/system/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("exposes name and prefix", func(t *testing.T) {
		g := NewDomainGroup("sync", "/sync")
		assert.Equal(t, "sync", g.Name())
		assert.Equal(t, "/sync", g.Prefix())
	})

	t.Run("registers routes for each verb", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("sales", "/sales")
		ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
		g.GET("/orders", ok)
		g.POST("/orders", func(c *gin.Context) { c.String(http.StatusCreated, "created") })
		g.PUT("/orders/:id", ok)
		g.PATCH("/orders/:id", ok)
		g.DELETE("/orders/:id", func(c *gin.Context) { c.String(http.StatusNoContent, "") })

		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusOK, serve(engine, "GET", "/api/v1/sales/orders").Code)
		assert.Equal(t, http.StatusCreated, serve(engine, "POST", "/api/v1/sales/orders").Code)
		assert.Equal(t, http.StatusOK, serve(engine, "PUT", "/api/v1/sales/orders/123").Code)
		assert.Equal(t, http.StatusOK, serve(engine, "PATCH", "/api/v1/sales/orders/123").Code)
		assert.Equal(t, http.StatusNoContent, serve(engine, "DELETE", "/api/v1/sales/orders/123").Code)
	})

	t.Run("applies group middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("sync", "/sync")
		g.Use(func(c *gin.Context) {
			c.Header("X-Sync-Group", "applied")
			c.Next()
		})
		g.GET("/status", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, "GET", "/api/v1/sync/status")
		assert.Equal(t, "applied", w.Header().Get("X-Sync-Group"))
	})

	t.Run("mounts subgroups recursively", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("catalog", "/catalog")

		skus := g.Group("skus", "/skus")
		skus.GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "sku list")
		})

		bindings := g.Group("bindings", "/bindings")
		bindings.GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "binding list")
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w1 := serve(engine, "GET", "/api/v1/catalog/skus")
		assert.Equal(t, http.StatusOK, w1.Code)
		assert.Equal(t, "sku list", w1.Body.String())

		w2 := serve(engine, "GET", "/api/v1/catalog/bindings")
		assert.Equal(t, http.StatusOK, w2.Code)
		assert.Equal(t, "binding list", w2.Body.String())
	})
}

func TestMultipleDomainGroups(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	sync := NewDomainGroup("sync", "/sync")
	sync.GET("/status", func(c *gin.Context) {
		c.String(http.StatusOK, "status")
	})

	system := NewDomainGroup("system", "/system")
	system.GET("/info", func(c *gin.Context) {
		c.String(http.StatusOK, "info")
	})

	r.Register(sync).Register(system)
	r.Setup()

	w1 := serve(engine, "GET", "/api/v1/sync/status")
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "status", w1.Body.String())

	w2 := serve(engine, "GET", "/api/v1/system/info")
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "info", w2.Body.String())
}

func TestChainedMethodCalls(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	g := NewDomainGroup("sync", "/sync")
	g.GET("/a", func(c *gin.Context) { c.String(http.StatusOK, "a") }).
		POST("/b", func(c *gin.Context) { c.String(http.StatusOK, "b") }).
		PUT("/c", func(c *gin.Context) { c.String(http.StatusOK, "c") })

	r.Register(g).Setup()

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/sync/a"},
		{"POST", "/api/v1/sync/b"},
		{"PUT", "/api/v1/sync/c"},
	}

	for _, tt := range tests {
		w := serve(engine, tt.method, tt.path)
		assert.Equal(t, http.StatusOK, w.Code, "route %s %s", tt.method, tt.path)
	}
}
