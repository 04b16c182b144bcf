package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/internal/models"
)

func newJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	svc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "middleware-tests-secret",
		Issuer:         "learnhub-tests",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func issue(t *testing.T, svc *iauth.JWTService, in iauth.AccessTokenInput) string {
	t.Helper()
	token, err := svc.GenerateAccessToken(in)
	require.NoError(t, err)
	return token
}

func TestAuthStoresViewerOnContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newJWT(t)
	token := issue(t, svc, iauth.AccessTokenInput{UserID: "staff-4", Role: models.RoleStaff, SessionID: "tab-1"})

	var seen struct{ user, role, session, claims string }
	r := gin.New()
	r.GET("/me", Auth(svc), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		seen.user = c.GetString(CtxUserIDKey)
		seen.role = c.GetString(CtxRoleKey)
		seen.session = c.GetString(CtxSessionIDKey)
		seen.claims = claims.UserID
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "staff-4", seen.user)
	require.Equal(t, models.RoleStaff, seen.role)
	require.Equal(t, "tab-1", seen.session)
	require.Equal(t, "staff-4", seen.claims)
}

func TestAuthRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newJWT(t)
	other, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "someone-else", Issuer: "learnhub-tests"})
	require.NoError(t, err)
	forged := issue(t, other, iauth.AccessTokenInput{UserID: "student-1"})

	r := gin.New()
	r.GET("/me", Auth(svc), func(c *gin.Context) { c.Status(http.StatusOK) })

	for name, header := range map[string]string{
		"missing header": "",
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"garbage token":  "Bearer not-a-token",
		"wrong key":      "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, bearerChallenge, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newJWT(t)

	r := gin.New()
	r.POST("/reminders", Auth(svc), RequireRole(models.RoleStaff, models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	r.GET("/unguarded", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	for role, want := range map[string]int{
		models.RoleStudent: http.StatusForbidden,
		models.RoleStaff:   http.StatusCreated,
		models.RoleAdmin:   http.StatusCreated,
	} {
		req := httptest.NewRequest(http.MethodPost, "/reminders", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, svc, iauth.AccessTokenInput{UserID: "u-" + role, Role: role}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, want, w.Code, role)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unguarded", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreamAuthAcceptsQueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newJWT(t)
	token := issue(t, svc, iauth.AccessTokenInput{UserID: "student-9", Role: models.RoleStudent})

	r := gin.New()
	echo := func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxUserIDKey)) }
	r.GET("/stream", StreamAuth(svc), echo)
	r.GET("/api", Auth(svc), echo)

	for _, query := range []string{"?access_token=" + token, "?token=" + token} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream"+query, nil))
		require.Equal(t, http.StatusOK, w.Code, query)
		require.Equal(t, "student-9", w.Body.String())
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api?access_token="+token, nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("  BEARER   abc "))
	require.Empty(t, bearerToken("Basic abc"))
	require.Empty(t, bearerToken("Bearer"))
	require.Empty(t, bearerToken(""))
}
