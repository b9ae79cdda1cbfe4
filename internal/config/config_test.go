package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PUBLIC_BASE_URL", "https://shop.example.com/")
	t.Setenv("TRUSTED_PROXIES", "")
	cfg := Load()

	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "https://shop.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "memory", cfg.CounterBackend)
	assert.Equal(t, 30, cfg.JWTExpiryDays)
	assert.True(t, cfg.ZarinpalSandbox)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("ZARINPAL_SANDBOX", "false")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, ,172.16.0.1")
	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.False(t, cfg.ZarinpalSandbox)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.1"}, cfg.TrustedProxies)
}
