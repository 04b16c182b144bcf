package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/learnhub/pkg/metrics"
)

func TestMetricsLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/notifications/:id", func(c *gin.Context) {
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPInFlight))
		c.Status(http.StatusOK)
	})

	before := testutil.CollectAndCount(metrics.APILatency)
	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Three ids share one series.
	require.Equal(t, before+1, testutil.CollectAndCount(metrics.APILatency))
	require.Zero(t, testutil.ToFloat64(metrics.HTTPInFlight))
}

func TestMetricsSkipsWebsocketUpgrades(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/realtime-test", func(c *gin.Context) {
		require.Zero(t, testutil.ToFloat64(metrics.HTTPInFlight))
		c.Status(http.StatusSwitchingProtocols)
	})

	before := testutil.CollectAndCount(metrics.APILatency)
	req := httptest.NewRequest(http.MethodGet, "/api/realtime-test", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "keep-alive, Upgrade")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, before, testutil.CollectAndCount(metrics.APILatency))
}
