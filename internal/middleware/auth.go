package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/response"
)

// Context keys populated by Auth and StreamAuth.
const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxRoleKey      = "userRole"
	CtxSessionIDKey = "sessionID"
)

const bearerChallenge = `Bearer realm="learnhub"`

// Auth admits requests carrying a valid bearer token in the Authorization
// header.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return authenticate(jwt, false)
}

// StreamAuth is Auth for websocket upgrades. Browsers cannot attach headers
// to an upgrade request, so the token may also come from ?access_token or
// ?token.
func StreamAuth(jwt *iauth.JWTService) gin.HandlerFunc {
	return authenticate(jwt, true)
}

func authenticate(jwt *iauth.JWTService, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = queryToken(c)
		}
		if token == "" {
			unauthorized(c)
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil || strings.TrimSpace(claims.UserID) == "" {
			unauthorized(c)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxRoleKey, claims.Role)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func queryToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query("token"))
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", bearerChallenge)
	response.Error(c, errors.ErrUnauthorized)
	c.Abort()
}

// ClaimsFrom returns the claims stored by Auth or StreamAuth.
func ClaimsFrom(c *gin.Context) (*iauth.Claims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*iauth.Claims)
	return claims, ok && claims != nil
}
