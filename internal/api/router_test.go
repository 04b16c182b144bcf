package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/internal/cache"
	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/database/testutil"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/monitoring"
	"github.com/charlesng35/learnhub/internal/monitoring/checks"
	"github.com/charlesng35/learnhub/internal/notifications"
	"github.com/charlesng35/learnhub/internal/realtime"
	"github.com/charlesng35/learnhub/internal/reminders"
)

func newDependencies(t *testing.T) Dependencies {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)

	feed := changefeed.New[models.Notification](notifications.Table)
	t.Cleanup(feed.Close)
	notificationSvc, err := notifications.NewService(db, feed)
	require.NoError(t, err)

	reminderSvc, err := reminders.NewService(db)
	require.NoError(t, err)

	return Dependencies{
		JWT:           jwtSvc,
		Notifications: notificationSvc,
		Reminders:     reminderSvc,
		Store:         cache.NewMemoryStore(),
		Hub:           realtime.NewHub(),
	}
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router, err := NewRouter(newDependencies(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/api/notifications", "/api/reminders", "/api/reminders/popup"} {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/realtime", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/health", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, err := NewRouter(newDependencies(t))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	metricsRec := httptest.NewRecorder()
	router.ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metricsRec.Code)

	body := metricsRec.Body.String()
	require.True(t, strings.Contains(body, `learnhub_api_latency_seconds_count{method="GET",path="/health",status="200"}`), body)
}

func TestRouter_Readiness(t *testing.T) {
	deps := newDependencies(t)
	router, err := NewRouter(deps)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	deps.Health = monitoring.NewHealthManager(time.Second)
	deps.Health.Register(checks.Redis(nil, true, 0))
	router, err = NewRouter(deps)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestRouter_RequiresDependencies(t *testing.T) {
	deps := newDependencies(t)
	deps.Store = nil
	_, err := NewRouter(deps)
	require.Error(t, err)

	deps = newDependencies(t)
	deps.JWT = nil
	_, err = NewRouter(deps)
	require.Error(t, err)
}

func TestRouter_AuthoringIsRateLimited(t *testing.T) {
	deps := newDependencies(t)
	deps.WriteRateLimit = 1
	router, err := NewRouter(deps)
	require.NoError(t, err)

	token, err := deps.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: "staff-1", Role: models.RoleStaff})
	require.NoError(t, err)

	create := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/notifications",
			strings.NewReader(`{"user_id":"student-1","title":"Quiz graded"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusCreated, create())
	require.Equal(t, http.StatusTooManyRequests, create())
}
