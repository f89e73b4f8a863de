package mailkit

import (
	"log/slog"
	"maps"
	"strconv"
	"time"
)

// Option is a functional option for configuring the mailkit client.
type Option func(*Config)

// WithTransportConfig sets the transport type and its settings.
func WithTransportConfig(transportType TransportType, settings TransportSettings) Option {
	return func(c *Config) {
		c.Transport.Type = transportType
		c.Transport.Settings = settings
	}
}

// WithTransport injects a ready transport. The client takes ownership and
// closes it on Close.
func WithTransport(t Transport) Option {
	return func(c *Config) {
		c.transport = t
	}
}

// WithTimeout sets the delivery timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Transport.Timeout = timeout
	}
}

// WithDefaults sets the default message fields applied to every Send.
func WithDefaults(defaults Message) Option {
	return func(c *Config) {
		c.Mail = defaults
	}
}

// WithTemplatesDir enables templated messages rendered from dir.
func WithTemplatesDir(dir string) Option {
	return func(c *Config) {
		c.TemplatesDir = dir
	}
}

// WithTemplateEngineOptions replaces the template engine options.
func WithTemplateEngineOptions(opts TemplateEngineOptions) Option {
	return func(c *Config) {
		c.TemplateEngineOptions = opts
	}
}

// WithHelper registers a template helper function.
func WithHelper(name string, fn any) Option {
	return func(c *Config) {
		helpers := maps.Clone(c.TemplateEngineOptions.Helpers)
		if helpers == nil {
			helpers = make(map[string]any)
		}
		helpers[name] = fn
		c.TemplateEngineOptions.Helpers = helpers
	}
}

// WithPartial registers a named sub-template available to every template.
func WithPartial(name, body string) Option {
	return func(c *Config) {
		partials := maps.Clone(c.TemplateEngineOptions.Partials)
		if partials == nil {
			partials = make(map[string]string)
		}
		partials[name] = body
		c.TemplateEngineOptions.Partials = partials
	}
}

// WithTemplateCache enables or disables caching of parsed templates.
// Disable it during development to pick up template edits without a restart.
func WithTemplateCache(enabled bool) Option {
	return func(c *Config) {
		c.TemplateEngineOptions.CacheEnabled = enabled
	}
}

// WithTemplateRenderer injects a custom renderer in place of the built-in
// template engine.
func WithTemplateRenderer(r TemplateRenderer) Option {
	return func(c *Config) {
		c.renderer = r
	}
}

// WithDryRun makes every send skip delivery and report DryRunResponse.
func WithDryRun() Option {
	return func(c *Config) {
		c.DryRun = true
	}
}

// WithLogger sets the logger used by the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithLogging configures logging.
func WithLogging(level, format, output string) Option {
	return func(c *Config) {
		c.Monitoring.Logging.Level = level
		c.Monitoring.Logging.Format = format
		c.Monitoring.Logging.Output = output
	}
}

// WithTracing enables span recording under the given service name.
func WithTracing(serviceName string) Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = true
		c.Monitoring.Tracing.ServiceName = serviceName
	}
}

// WithoutTracing disables distributed tracing.
func WithoutTracing() Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = false
	}
}

// WithSMTP creates an SMTP transport configuration.
func WithSMTP(host string, port int) Option {
	return WithTransportConfig(TransportSMTP, TransportSettings{
		"host": host,
		"port": strconv.Itoa(port),
	})
}

// WithSMTPAuth creates an SMTP transport configuration with authentication.
func WithSMTPAuth(host string, port int, username, password string) Option {
	return WithTransportConfig(TransportSMTP, TransportSettings{
		"host":     host,
		"port":     strconv.Itoa(port),
		"username": username,
		"password": password,
	})
}

// WithAWSSES creates an AWS SES transport configuration using the default
// credential chain.
func WithAWSSES(region string) Option {
	return WithTransportConfig(TransportAWSSES, TransportSettings{
		"region": region,
	})
}

// WithAWSSESCredentials creates an AWS SES transport configuration with explicit credentials.
func WithAWSSESCredentials(region, accessKey, secretKey string) Option {
	return WithTransportConfig(TransportAWSSES, TransportSettings{
		"region":     region,
		"access_key": accessKey,
		"secret_key": secretKey,
	})
}

// WithSendGrid creates a SendGrid transport configuration.
func WithSendGrid(apiKey string) Option {
	return WithTransportConfig(TransportSendGrid, TransportSettings{
		"api_key": apiKey,
	})
}

// WithMailgun creates a Mailgun transport configuration.
func WithMailgun(apiKey, domain string) Option {
	return WithTransportConfig(TransportMailgun, TransportSettings{
		"api_key": apiKey,
		"domain":  domain,
	})
}

// WithMailgunEU creates a Mailgun transport configuration for the EU region.
func WithMailgunEU(apiKey, domain string) Option {
	return WithTransportConfig(TransportMailgun, TransportSettings{
		"api_key":  apiKey,
		"domain":   domain,
		"base_url": "https://api.eu.mailgun.net",
	})
}

// WithResend creates a Resend transport configuration.
func WithResend(apiKey string) Option {
	return WithTransportConfig(TransportResend, TransportSettings{
		"api_key": apiKey,
	})
}
