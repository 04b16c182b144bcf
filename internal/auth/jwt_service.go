// Package auth validates the access tokens that identify viewers. Issuing
// tokens is limited to tooling and tests; sign-in flows live elsewhere.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/learnhub/internal/models"
)

// DefaultAccessTokenTTL is used when JWTConfig.AccessTokenTTL is unset.
const DefaultAccessTokenTTL = 15 * time.Minute

// clockSkew tolerates small clock differences between issuer and server.
const clockSkew = 30 * time.Second

// JWTConfig configures a JWTService. Issuer, when set, is both stamped on
// issued tokens and required on validated ones.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// AccessTokenInput describes the viewer a token is issued for. An empty
// role issues a student token.
type AccessTokenInput struct {
	UserID    string
	Role      string
	Name      string
	SessionID string
	Audience  []string
}

// JWTService signs and verifies HS256 access tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewJWTService validates cfg and builds the service.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if svc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(svc.issuer))
	}
	svc.parser = jwt.NewParser(opts...)
	return svc, nil
}

// GenerateAccessToken signs a token for input that expires after the
// configured TTL.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	role := strings.ToLower(strings.TrimSpace(input.Role))
	if role == "" {
		role = models.RoleStudent
	}

	issuedAt := s.now()
	claims := &Claims{
		UserID:    strings.TrimSpace(input.UserID),
		Role:      role,
		Name:      strings.TrimSpace(input.Name),
		SessionID: input.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        input.SessionID,
			Subject:   input.UserID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies the signature, lifetime and issuer of raw and
// returns its claims. Errors wrap the jwt package sentinels such as
// jwt.ErrTokenExpired, or ErrMissingUser and ErrUnknownRole.
func (s *JWTService) ValidateAccessToken(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("jwt: %w", jwt.ErrTokenMalformed)
	}

	claims := new(Claims)
	if _, err := s.parser.ParseWithClaims(raw, claims, s.key); err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	return claims, nil
}

func (s *JWTService) key(*jwt.Token) (any, error) {
	return s.secret, nil
}
