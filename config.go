package mailkit

import (
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Config holds the complete mailer configuration.
type Config struct {
	// Transport selects and configures the delivery backend.
	Transport TransportConfig

	// Mail holds the default message fields applied to every Send.
	Mail Message

	// TemplatesDir is the directory holding one sub-directory per template (optional).
	TemplatesDir string

	// TemplateEngineOptions are forwarded to the template engine.
	TemplateEngineOptions TemplateEngineOptions

	// DryRun runs validation and rendering but never delivers; every send
	// reports DryRunResponse.
	DryRun bool

	// Monitoring contains observability configuration.
	Monitoring MonitoringConfig

	// Collaborators injected through options.
	transport Transport
	renderer  TemplateRenderer
	logger    *slog.Logger
}

// TransportConfig contains transport-specific settings.
type TransportConfig struct {
	// Type specifies the transport to use.
	Type TransportType

	// Settings is passed to the transport unmodified.
	Settings TransportSettings

	// Timeout bounds a single delivery.
	Timeout time.Duration
}

// TransportType represents the type of mail transport.
type TransportType string

const (
	// TransportSMTP represents a generic SMTP server.
	TransportSMTP TransportType = "smtp"

	// TransportAWSSES represents Amazon Simple Email Service.
	TransportAWSSES TransportType = "aws_ses"

	// TransportSendGrid represents the SendGrid email service.
	TransportSendGrid TransportType = "sendgrid"

	// TransportMailgun represents the Mailgun email service.
	TransportMailgun TransportType = "mailgun"

	// TransportResend represents the Resend email service.
	TransportResend TransportType = "resend"
)

// String returns the string representation of the transport type.
func (tt TransportType) String() string {
	return string(tt)
}

// Valid checks if the transport type is supported.
func (tt TransportType) Valid() bool {
	switch tt {
	case TransportSMTP, TransportAWSSES, TransportSendGrid, TransportMailgun, TransportResend:
		return true
	default:
		return false
	}
}

// TemplateEngineOptions contains template engine configuration.
type TemplateEngineOptions struct {
	// Helpers are extra template functions; they override built-ins of the same name.
	Helpers map[string]any

	// Partials are named sub-templates available to every template via {{template "name" .}}.
	Partials map[string]string

	// LeftDelim and RightDelim replace the default {{ and }} delimiters.
	LeftDelim  string
	RightDelim string

	// Extensions lists the file extensions tried, in order, for each template part.
	Extensions []string

	// CacheEnabled keeps parsed templates between renders.
	CacheEnabled bool

	// AllowUnsafeFunctions enables helpers that bypass auto-escaping.
	// WARNING: Only enable this if you trust all template content completely.
	AllowUnsafeFunctions bool
}

// MonitoringConfig contains observability configuration.
type MonitoringConfig struct {
	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig

	// Logging contains logging configuration.
	Logging LoggingConfig
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled indicates whether spans are recorded.
	Enabled bool

	// ServiceName is used as the tracer name.
	ServiceName string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string

	// Format is the log format (json, text, dev).
	Format string

	// Output is where to write logs (stdout, stderr, or file path).
	Output string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Transport: TransportConfig{
			Settings: TransportSettings{},
			Timeout:  30 * time.Second,
		},
		TemplateEngineOptions: DefaultTemplateEngineOptions(),
		Monitoring: MonitoringConfig{
			Tracing: TracingConfig{
				Enabled:     true,
				ServiceName: "mailkit",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
	}
}

// DefaultTemplateEngineOptions returns default template engine options.
func DefaultTemplateEngineOptions() TemplateEngineOptions {
	return TemplateEngineOptions{
		Extensions:   []string{".tmpl", ".html", ".txt", ".md"},
		CacheEnabled: true,
	}
}

// Validate checks if the configuration is valid and complete.
// A transport type is only required when the client has to build one.
func (c *Config) Validate() error {
	if !c.DryRun && c.transport == nil && !c.Transport.Type.Valid() {
		return &ValidationError{
			Field:   "transport.type",
			Message: "invalid or unsupported transport type: " + string(c.Transport.Type),
		}
	}

	if c.Transport.Timeout <= 0 {
		return &ValidationError{
			Field:   "transport.timeout",
			Message: "timeout must be greater than 0",
		}
	}

	if len(c.TemplateEngineOptions.Extensions) == 0 {
		return &ValidationError{
			Field:   "template_engine_options.extensions",
			Message: "at least one template extension is required",
		}
	}

	if (c.TemplateEngineOptions.LeftDelim == "") != (c.TemplateEngineOptions.RightDelim == "") {
		return &ValidationError{
			Field:   "template_engine_options.delims",
			Message: "left and right delimiters must be set together",
		}
	}

	switch c.Monitoring.Logging.Format {
	case LogFormatJSON, LogFormatText, LogFormatDev:
	default:
		return &ValidationError{
			Field:   "monitoring.logging.format",
			Message: "format must be json, text or dev",
			Value:   c.Monitoring.Logging.Format,
		}
	}

	return nil
}

// withDefaults fills empty non-boolean fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.Transport.Settings == nil {
		c.Transport.Settings = def.Transport.Settings
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = def.Transport.Timeout
	}
	if len(c.TemplateEngineOptions.Extensions) == 0 {
		c.TemplateEngineOptions.Extensions = def.TemplateEngineOptions.Extensions
	}
	if c.Monitoring.Tracing.ServiceName == "" {
		c.Monitoring.Tracing.ServiceName = def.Monitoring.Tracing.ServiceName
	}
	if c.Monitoring.Logging.Level == "" {
		c.Monitoring.Logging.Level = def.Monitoring.Logging.Level
	}
	if c.Monitoring.Logging.Format == "" {
		c.Monitoring.Logging.Format = def.Monitoring.Logging.Format
	}
	if c.Monitoring.Logging.Output == "" {
		c.Monitoring.Logging.Output = def.Monitoring.Logging.Output
	}

	return c
}

// clone returns a copy that shares no maps or slices with c.
func (c Config) clone() Config {
	c.Mail = cloneMessage(c.Mail)
	c.Transport.Settings = maps.Clone(c.Transport.Settings)
	c.TemplateEngineOptions.Helpers = maps.Clone(c.TemplateEngineOptions.Helpers)
	c.TemplateEngineOptions.Partials = maps.Clone(c.TemplateEngineOptions.Partials)
	c.TemplateEngineOptions.Extensions = slices.Clone(c.TemplateEngineOptions.Extensions)
	return c
}

// cloneMessage copies the maps and slices of m. Template content is copied
// one level deep when it is a map.
func cloneMessage(m Message) Message {
	m.Headers = maps.Clone(m.Headers)
	m.Metadata = maps.Clone(m.Metadata)
	m.Attachments = slices.Clone(m.Attachments)
	switch content := m.TemplateContent.(type) {
	case map[string]any:
		m.TemplateContent = maps.Clone(content)
	case map[string]string:
		m.TemplateContent = maps.Clone(content)
	}
	return m
}
