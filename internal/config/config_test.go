package config_test

import (
	"testing"
	"time"

	"github.com/blacknight/storefront/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYMENT_POLL_INTERVAL", "")
	t.Setenv("PAYMENT_POLL_ATTEMPTS", "")
	t.Setenv("BACKEND_TIMEOUT", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.PaymentPollInterval)
	assert.Equal(t, 20, cfg.PaymentPollAttempts)
	assert.Equal(t, 220*time.Second, cfg.PaymentPollBudget)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://api.internal:9000")
	t.Setenv("PAYMENT_POLL_ATTEMPTS", "5")
	t.Setenv("CART_TTL", "1h")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("PAYMENT_POLL_INTERVAL", "bogus")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://api.internal:9000", cfg.BackendURL)
	assert.Equal(t, 5, cfg.PaymentPollAttempts)
	assert.Equal(t, time.Hour, cfg.CartTTL)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, 2*time.Second, cfg.PaymentPollInterval)
}

func TestPollBudget(t *testing.T) {
	// fast backend: the tick dominates
	assert.Equal(t, 42*time.Second, config.PollBudget(2*time.Second, 20, time.Second))
	// slow backend: every attempt can take the full timeout
	assert.Equal(t, 220*time.Second, config.PollBudget(2*time.Second, 20, 10*time.Second))
	assert.Equal(t, 9*time.Second, config.PollBudget(3*time.Second, 1, 3*time.Second))
}
