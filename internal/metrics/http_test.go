package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	provider, err := NewProvider("apikeys_http")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	environment := func(c *gin.Context) attribute.KeyValue {
		return attribute.String("environment", c.GetHeader("X-Env"))
	}

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider.MeterProvider(), "apikeys_http", environment))
	router.GET("/tokens/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, path := range []string{"/tokens/1", "/tokens/2"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Env", "live")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	output := scrape(t, provider)

	assertMetricLine(t, output, `apikeys_http_http_requests_total`,
		`environment="live".*method="GET".*route="/tokens/:id".*status_code="204"`, `2`)
	assertMetricLine(t, output, `apikeys_http_http_requests_total`,
		`route="unmatched".*status_code="404"`, `1`)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/tokens/:id", routeLabel("/tokens/:id"))
	assert.Equal(t, "unmatched", routeLabel(""))
}
