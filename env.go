package mailkit

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// DefaultEnvPrefix is the prefix LoadConfig reads variables with.
const DefaultEnvPrefix = "MAILKIT"

// DefaultEnvFile is loaded, when present, before reading the environment.
const DefaultEnvFile = ".env"

// envSpec lists the variables understood by LoadConfigWithPrefix, e.g.
//
//	MAILKIT_TRANSPORT=smtp
//	MAILKIT_TRANSPORT_SETTINGS=host:smtp.example.com,port:587
//	MAILKIT_FROM=noreply@example.com
type envSpec struct {
	Transport         string            `split_words:"true"`
	TransportSettings map[string]string `split_words:"true"`
	Timeout           time.Duration     `split_words:"true" default:"30s"`

	From    string `split_words:"true"`
	ReplyTo string `split_words:"true"`
	Subject string `split_words:"true"`

	TemplatesDir  string `split_words:"true"`
	TemplateCache bool   `split_words:"true" default:"true"`

	DryRun bool `split_words:"true"`

	TracingEnabled bool   `split_words:"true" default:"true"`
	ServiceName    string `split_words:"true" default:"mailkit"`
	LogLevel       string `split_words:"true" default:"info"`
	LogFormat      string `split_words:"true" default:"json"`
	LogOutput      string `split_words:"true" default:"stdout"`
}

// LoadConfig reads a Config from MAILKIT_* environment variables.
func LoadConfig() (Config, error) {
	return LoadConfigWithPrefix(DefaultEnvPrefix)
}

// LoadConfigWithPrefix reads a Config from environment variables named
// <prefix>_<NAME>. Unprefixed names such as DRY_RUN are ignored. A .env file
// in the working directory is loaded first if it exists; variables already
// set take precedence over it. The result is validated by New.
func LoadConfigWithPrefix(prefix string) (Config, error) {
	// nolint:errcheck // .env file is optional
	_ = godotenv.Load(DefaultEnvFile)

	var spec envSpec
	if err := envconfig.Process(prefix, &spec); err != nil {
		return Config{}, errors.Wrap(err, "failed to envconfig.Process")
	}

	cfg := DefaultConfig()
	cfg.Transport.Type = TransportType(spec.Transport)
	if len(spec.TransportSettings) > 0 {
		cfg.Transport.Settings = TransportSettings(spec.TransportSettings)
	}
	cfg.Transport.Timeout = spec.Timeout
	cfg.Mail = Message{
		From:    spec.From,
		ReplyTo: spec.ReplyTo,
		Subject: spec.Subject,
	}
	cfg.TemplatesDir = spec.TemplatesDir
	cfg.TemplateEngineOptions.CacheEnabled = spec.TemplateCache
	cfg.DryRun = spec.DryRun
	cfg.Monitoring.Tracing.Enabled = spec.TracingEnabled
	cfg.Monitoring.Tracing.ServiceName = spec.ServiceName
	cfg.Monitoring.Logging = LoggingConfig{
		Level:  spec.LogLevel,
		Format: spec.LogFormat,
		Output: spec.LogOutput,
	}

	return cfg, nil
}
