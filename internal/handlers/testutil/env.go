// Package testutil builds a fully wired API over an in-memory database for
// handler tests.
package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/internal/api"
	iauth "github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/internal/cache"
	"github.com/charlesng35/learnhub/internal/changefeed"
	dbtestutil "github.com/charlesng35/learnhub/internal/database/testutil"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/notifications"
	"github.com/charlesng35/learnhub/internal/realtime"
	"github.com/charlesng35/learnhub/internal/reminders"
)

const signingSecret = "handler-tests-signing-secret-0123456789"

// Env is one API instance plus a browser-like cookie jar.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Notifications *notifications.Service
	Reminders     *reminders.Service
	Store         *cache.DatabaseStore
	Hub           *realtime.Hub

	jar http.CookieJar
}

// EnvOption adjusts the router dependencies before the router is built.
type EnvOption func(*api.Dependencies)

// WithFallbackData enables the demonstration reminder set.
func WithFallbackData() EnvOption {
	return func(d *api.Dependencies) { d.FallbackData = true }
}

// NewEnv migrates a fresh database and builds the router over it.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &Env{T: t, DB: dbtestutil.MustOpenTestDB(t)}
	env.ForgetCookies()

	var err error
	env.JWT, err = iauth.NewJWTService(iauth.JWTConfig{
		Secret:         signingSecret,
		Issuer:         "learnhub-tests",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	feed := changefeed.New[models.Notification](notifications.Table)
	t.Cleanup(feed.Close)

	env.Notifications, err = notifications.NewService(env.DB, feed)
	require.NoError(t, err)
	t.Cleanup(env.Notifications.Cleanup)

	env.Hub = realtime.NewHub()
	t.Cleanup(env.Hub.Close)
	bridge := realtime.NewBridge(env.Hub, feed)
	t.Cleanup(bridge.Close)

	env.Reminders, err = reminders.NewService(env.DB, reminders.WithBroadcaster(env.Hub))
	require.NoError(t, err)
	env.Store = cache.NewDatabaseStore(env.DB)

	deps := api.Dependencies{
		JWT:           env.JWT,
		Notifications: env.Notifications,
		Reminders:     env.Reminders,
		Store:         env.Store,
		Hub:           env.Hub,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.Router, err = api.NewRouter(deps)
	require.NoError(t, err)
	return env
}

// Token issues an access token for userID with role.
func (e *Env) Token(userID, role string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Role: role, Name: userID})
	require.NoError(e.T, err)
	return token
}

// ForgetCookies starts a new browser session.
func (e *Env) ForgetCookies() {
	jar, err := cookiejar.New(nil)
	require.NoError(e.T, err)
	e.jar = jar
}
