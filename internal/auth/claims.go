package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/learnhub/internal/models"
)

var (
	// ErrMissingUser rejects a token without a viewer id.
	ErrMissingUser = errors.New("jwt: missing user id claim")
	// ErrUnknownRole rejects a role outside student, staff and admin.
	ErrUnknownRole = errors.New("jwt: unknown role")
)

// Claims identify the viewer behind a request. Role decides which reminder
// audiences the viewer belongs to.
type Claims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims have been checked by the parser.
func (c *Claims) Validate() error {
	if c.UserID == "" {
		return ErrMissingUser
	}
	if !models.ValidRole(c.Role) {
		return fmt.Errorf("%w %q", ErrUnknownRole, c.Role)
	}
	return nil
}

var _ jwt.ClaimsValidator = (*Claims)(nil)
