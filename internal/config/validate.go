package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Session.CodeAttempts < 1 {
		errs = append(errs, errors.New("SESSION_CODE_ATTEMPTS must be at least 1"))
	}
	if c.RateLimit.SwipesPerMinute < 1 || c.RateLimit.SessionsPerMinute < 1 || c.RateLimit.JoinsPerMinute < 1 {
		errs = append(errs, errors.New("rate limits must be at least 1 per minute"))
	}
	if c.WS.WorkerPoolSize < 1 {
		errs = append(errs, errors.New("WS_WORKER_POOL_SIZE must be at least 1"))
	}
	if c.Client.JoinPollInterval <= 0 || c.Client.MatchPollInterval <= 0 {
		errs = append(errs, errors.New("poll intervals must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}

// RequireJWTSecret is called by binaries that verify or mint tokens.
func (c *Config) RequireJWTSecret() error {
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: AUTH_JWT_SECRET must be at least 16 characters")
	}
	return nil
}
