package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
)

// KeyJWTSecret names the signing secret in configuration and in the list of
// values Finalize generated.
const KeyJWTSecret = "auth.jwt.secret"

const (
	signingKeyBytes   = 48
	defaultPageSize   = 20
	defaultRetention  = 30
	defaultFeedBuffer = 64
)

// Finalize fills values that cannot come from static defaults and rejects
// settings the server cannot run with. The returned keys name values that
// were generated for this process only; callers log the keys, never the
// values.
func (c *Config) Finalize() ([]string, error) {
	if c == nil {
		return nil, errors.New("config: nil")
	}

	var generated []string
	c.Auth.JWT.Secret = strings.TrimSpace(c.Auth.JWT.Secret)
	if c.Auth.JWT.Secret == "" {
		secret, err := randomHex(signingKeyBytes)
		if err != nil {
			return nil, fmt.Errorf("config: generate %s: %w", KeyJWTSecret, err)
		}
		c.Auth.JWT.Secret = secret
		generated = append(generated, KeyJWTSecret)
	}

	n := &c.Notifications
	if n.PageSize <= 0 {
		n.PageSize = defaultPageSize
	}
	if n.RetentionDays <= 0 {
		n.RetentionDays = defaultRetention
	}
	if n.FeedBuffer <= 0 {
		n.FeedBuffer = defaultFeedBuffer
	}
	if c.Realtime.SendBuffer <= 0 {
		c.Realtime.SendBuffer = defaultFeedBuffer
	}

	return generated, c.validate()
}

func (c *Config) validate() error {
	var err error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Auth.JWT.TTL < 0 {
		err = multierr.Append(err, errors.New("auth.jwt.access_token_ttl must not be negative"))
	}
	for key, spec := range map[string]string{
		"notifications.cleanup_schedule": c.Notifications.CleanupSchedule,
		"maintenance.cache_schedule":     c.Maintenance.CacheSchedule,
	} {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		if _, parseErr := cron.ParseStandard(spec); parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", key, parseErr))
		}
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
