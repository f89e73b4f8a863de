package mailkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWithPrefix(t *testing.T) {
	t.Setenv("MKTEST_TRANSPORT", "smtp")
	t.Setenv("MKTEST_TRANSPORT_SETTINGS", "host:smtp.example.com,port:2525")
	t.Setenv("MKTEST_TIMEOUT", "5s")
	t.Setenv("MKTEST_FROM", "team@example.com")
	t.Setenv("MKTEST_TEMPLATES_DIR", "templates")
	t.Setenv("MKTEST_DRY_RUN", "true")
	t.Setenv("MKTEST_LOG_FORMAT", "text")

	cfg, err := LoadConfigWithPrefix("MKTEST")

	require.NoError(t, err)
	assert.Equal(t, TransportSMTP, cfg.Transport.Type)
	assert.Equal(t, TransportSettings{"host": "smtp.example.com", "port": "2525"}, cfg.Transport.Settings)
	assert.Equal(t, 5*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, "team@example.com", cfg.Mail.From)
	assert.Equal(t, "templates", cfg.TemplatesDir)
	assert.True(t, cfg.DryRun)
	assert.True(t, cfg.TemplateEngineOptions.CacheEnabled)
	assert.Equal(t, LogFormatText, cfg.Monitoring.Logging.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigWithPrefix_Defaults(t *testing.T) {
	cfg, err := LoadConfigWithPrefix("MKTEST_EMPTY")

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, "mailkit", cfg.Monitoring.Tracing.ServiceName)
	assert.True(t, cfg.Monitoring.Tracing.Enabled)
	assert.Equal(t, "info", cfg.Monitoring.Logging.Level)
	assert.Empty(t, cfg.Transport.Type)
}

func TestLoadConfigWithPrefix_InvalidValue(t *testing.T) {
	t.Setenv("MKTEST_BAD_TIMEOUT", "soon")

	_, err := LoadConfigWithPrefix("MKTEST_BAD")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to envconfig.Process")
}

func TestLoadConfigWithPrefix_IgnoresUnprefixed(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("TIMEOUT", "1ns")
	t.Setenv("SUBJECT", "stray subject")
	t.Setenv("TRANSPORT", "sendgrid")

	cfg, err := LoadConfigWithPrefix("MKTEST_SCOPED")

	require.NoError(t, err)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
	assert.Empty(t, cfg.Mail.Subject)
	assert.Empty(t, cfg.Transport.Type)
}
