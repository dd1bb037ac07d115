package config

import (
	"strings"
	"testing"
	"time"

	"github.com/eaglelearn/account-api/internal/repository"
	"github.com/eaglelearn/account-api/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("s", MinJWTSecretLength)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ACCOUNT_API_JWT_SECRET", testSecret)
	t.Setenv("ACCOUNT_API_DRIVER", "sqlite")
	t.Setenv("ACCOUNT_API_DSN", "file:accounts.db")
	t.Setenv("ACCOUNT_API_RETIREMENT_SALTS", "old-salt, new-salt")
	t.Setenv("ACCOUNT_API_TOKEN_LIFETIME", "30m")
	t.Setenv("ACCOUNT_API_VISIBILITY_DEFAULT", "private")
	t.Setenv("ACCOUNT_API_INSTANCE_ID", "node-1")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, repository.DriverSQLite, cfg.Driver)
	assert.Equal(t, "file:accounts.db", cfg.DSN)
	assert.Equal(t, []string{"old-salt", "new-salt"}, cfg.RetirementSalts)
	assert.Equal(t, 30*time.Minute, cfg.TokenLifetime)
	assert.Equal(t, models.PrivacyPrivate, cfg.VisibilityDefault)
	assert.Equal(t, "node-1", cfg.InstanceID)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestLoadGeneratesInstanceID(t *testing.T) {
	v := New()
	v.Set("jwt-secret", testSecret)
	v.Set("retirement-salts", []string{"salt"})

	first, err := Load(v)
	require.NoError(t, err)
	second, err := Load(v)
	require.NoError(t, err)

	assert.NotEmpty(t, first.InstanceID)
	assert.NotEqual(t, first.InstanceID, second.InstanceID)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:              8080,
			Driver:            repository.DriverPostgres,
			DSN:               "postgres://localhost/accounts",
			RedisAddr:         "localhost:6379",
			JWTSecret:         testSecret,
			TokenLifetime:     time.Hour,
			CacheTTL:          time.Minute,
			RetirementSalts:   []string{"salt"},
			VisibilityDefault: models.PrivacyAllUsers,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"driver", func(c *Config) { c.Driver = "mysql" }},
		{"dsn", func(c *Config) { c.DSN = "" }},
		{"redis", func(c *Config) { c.RedisAddr = "" }},
		{"short secret", func(c *Config) { c.JWTSecret = "secret" }},
		{"token lifetime", func(c *Config) { c.TokenLifetime = 0 }},
		{"cache ttl", func(c *Config) { c.CacheTTL = -time.Second }},
		{"salts", func(c *Config) { c.RetirementSalts = nil }},
		{"visibility", func(c *Config) { c.VisibilityDefault = "friends" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
