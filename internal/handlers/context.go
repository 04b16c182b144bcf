package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/learnhub/internal/middleware"
	"github.com/charlesng35/learnhub/internal/reminders"
)

// requestContext returns the request's context, or Background for a bare
// gin.Context built in tests.
func requestContext(c *gin.Context) context.Context {
	if c != nil && c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}

// viewerFrom returns the caller authenticated by middleware.Auth or
// middleware.StreamAuth.
func viewerFrom(c *gin.Context) (reminders.Viewer, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if ok && strings.TrimSpace(claims.UserID) != "" {
		return reminders.Viewer{ID: claims.UserID, Role: claims.Role}, true
	}
	id := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if id == "" {
		return reminders.Viewer{}, false
	}
	return reminders.Viewer{ID: id, Role: c.GetString(middleware.CtxRoleKey)}, true
}
