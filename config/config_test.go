package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.JWT = JWTConfig{
			AccessTokenSecret:  "a",
			AccessTokenTTL:     time.Hour,
			RefreshTokenSecret: "r",
			RefreshTokenTTL:    24 * time.Hour,
		}
		return c
	}

	t.Run("Valid", func(t *testing.T) {
		c := valid()
		assert.NoError(t, c.Validate())
	})

	t.Run("MissingSecrets", func(t *testing.T) {
		c := valid()
		c.JWT.AccessTokenSecret = ""
		c.JWT.RefreshTokenSecret = ""

		err := c.Validate()

		assert.ErrorContains(t, err, "jwt.accessTokenSecret is required")
		assert.ErrorContains(t, err, "jwt.refreshTokenSecret is required")
	})

	t.Run("PoolMinAboveMax", func(t *testing.T) {
		c := valid()
		c.Repositories.Postgres.Pool = PoolConfig{MaxConns: 2, MinConns: 4}

		assert.ErrorContains(t, c.Validate(), "minConns must not exceed maxConns")
	})

	t.Run("NonPositiveTTL", func(t *testing.T) {
		c := valid()
		c.JWT.RefreshTokenTTL = 0

		assert.ErrorContains(t, c.Validate(), "jwt.refreshTokenTTL must be positive")
	})
}

func TestInitConfig_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_ACCESSTOKENSECRET", "env-access")
	t.Setenv("JWT_REFRESHTOKENSECRET", "env-refresh")

	cfg, err := InitConfig()

	assert.NoError(t, err)
	assert.Equal(t, "env-access", cfg.JWT.AccessTokenSecret)
	assert.Equal(t, "env-refresh", cfg.JWT.RefreshTokenSecret)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, "go-account-service", cfg.JWT.Issuer)
	assert.Equal(t, int32(10), cfg.Repositories.Postgres.Pool.MaxConns)
	assert.Equal(t, 5, cfg.Repositories.Postgres.Pool.ReadyAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Repositories.Postgres.Pool.ReadyBackoff)
}
