package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/response"
)

// RequireRole admits authenticated callers whose role is one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxUserIDKey) == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !slices.Contains(roles, c.GetString(CtxRoleKey)) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
