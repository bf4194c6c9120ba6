package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "USD", cfg.Billing.Currency)
	assert.Equal(t, 14, cfg.Billing.DefaultTrialDays)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("TASKHIVE_PORT", "3000")
	t.Setenv("TASKHIVE_LOG_LEVEL", "debug")
	t.Setenv("TASKHIVE_INVOICE_DUE_DAYS", "30")
	t.Setenv("TASKHIVE_REDIS_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 30, cfg.Billing.InvoiceDueDays)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidateRejectsPortClash(t *testing.T) {
	t.Setenv("TASKHIVE_PORT", "9090")
	t.Setenv("TASKHIVE_HEALTH_PORT", "9090")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")
}

func TestValidateRejectsNonPositiveDueDays(t *testing.T) {
	t.Setenv("TASKHIVE_INVOICE_DUE_DAYS", "0")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice due days")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("bogus"))
}
