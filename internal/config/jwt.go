package config

import (
	"fmt"
	"os"
)

// JWTConfig holds configuration for signing and validating control API tokens.
type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	ExpirationHours int    `mapstructure:"expiration_hours"`
}

// Ready validates the configuration for token use. An empty secret falls back
// to JWT_SECRET so existing deployments keep working.
func (c *JWTConfig) Ready() error {
	if c.Secret == "" {
		c.Secret = os.Getenv("JWT_SECRET")
	}
	if c.ExpirationHours == 0 {
		c.ExpirationHours = 24
	}
	return c.normalize()
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT secret is required (server.jwt.secret or JWT_SECRET)")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT secret must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT expiration must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
