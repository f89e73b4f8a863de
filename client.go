package mailkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/lattiq/mailkit/internal/core"
	"github.com/lattiq/mailkit/internal/transports/dryrun"
	"github.com/lattiq/mailkit/internal/transports/mailgun"
	"github.com/lattiq/mailkit/internal/transports/resend"
	"github.com/lattiq/mailkit/internal/transports/sendgrid"
	"github.com/lattiq/mailkit/internal/transports/ses"
	"github.com/lattiq/mailkit/internal/transports/smtp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Type aliases to re-export core types for the public API.
type (
	Transport         = core.Transport
	TransportSettings = core.TransportSettings
	Message           = core.Message
	MessageKind       = core.MessageKind
	Attachment        = core.Attachment
	SendResult        = core.SendResult
	ValidationError   = core.ValidationError
	TransportError    = core.TransportError
)

// Message kinds
const (
	KindPlain     = core.KindPlain
	KindTemplated = core.KindTemplated
)

// DryRunResponse is the response reported for every message in dry-run mode.
const DryRunResponse = dryrun.Response

// Error helpers
var (
	NewValidationError          = core.NewValidationError
	NewValidationErrorWithValue = core.NewValidationErrorWithValue
	NewTransportError           = core.NewTransportError
	IsRetryable                 = core.IsRetryable
	IsTemporary                 = core.IsTemporary
)

const tracerName = "github.com/lattiq/mailkit"

// Client implements the Mailer interface.
// All methods are safe for concurrent use.
type Client struct {
	config    Config
	transport Transport
	logger    *slog.Logger
	logFile   io.Closer
	tracer    trace.Tracer
	mailer    string

	renderMu sync.Mutex
	renderer TemplateRenderer

	mu     sync.RWMutex
	closed bool
}

// New creates a new client from config and options. Empty string, duration
// and slice fields take their DefaultConfig values; boolean switches are kept
// as given, so template caching and tracing are only on when config starts
// from DefaultConfig or enables them. The client must be closed when no
// longer needed to release the transport.
func New(config Config, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		opt(&config)
	}
	config = config.withDefaults().clone()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	client := &Client{
		config:   config,
		renderer: config.renderer,
		mailer:   GetVersionInfo().UserAgent(),
	}

	client.logger = config.logger
	if client.logger == nil {
		logger, logFile, err := newLogger(config.Monitoring.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		client.logger, client.logFile = logger, logFile
	}

	if config.Monitoring.Tracing.Enabled {
		client.tracer = otel.Tracer(config.Monitoring.Tracing.ServiceName)
	} else {
		client.tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	transport, err := createTransport(config)
	if err == nil {
		err = transport.ValidateConfig()
	}
	if err != nil {
		_ = client.closeLog()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	client.transport = transport

	client.logger.Debug("mailkit client created",
		slog.String("transport", transport.Name()),
		slog.Bool("dry_run", config.DryRun),
		slog.String("templates_dir", config.TemplatesDir),
	)

	return client, nil
}

// Send merges overrides over the configured defaults, renders the template
// when one is requested and hands the message to the transport. Collaborator
// errors are returned unchanged.
func (c *Client) Send(ctx context.Context, overrides *Message) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "mailkit.Client.Send")
	defer span.End()

	res, err := c.send(ctx, span, overrides)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WarnContext(ctx, "send failed", slog.String("error", err.Error()))
		return nil, err
	}

	span.SetAttributes(attribute.String("mailkit.message_id", res.MessageID))
	span.SetStatus(codes.Ok, "message sent")
	c.logger.DebugContext(ctx, "message sent",
		slog.String("transport", res.Transport),
		slog.String("message_id", res.MessageID),
	)

	return res, nil
}

func (c *Client) send(ctx context.Context, span trace.Span, overrides *Message) (*Result, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClientClosed
	}

	var over Message
	if overrides != nil {
		over = *overrides
	}
	msg := core.Merge(c.config.Mail, over)

	if strings.TrimSpace(msg.From) == "" {
		return nil, ErrSenderRequired
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, ErrReceiverRequired
	}

	kind, err := msg.Kind(c.config.TemplatesDir != "" || c.config.renderer != nil)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("mailkit.kind", kind.String()),
		attribute.String("mailkit.transport", c.transport.Name()),
		attribute.String("mailkit.template", msg.TemplateName),
	)

	res := &Result{}

	if kind == KindTemplated {
		renderer, err := c.templateRenderer()
		if err != nil {
			return nil, err
		}

		rendered, err := renderer.Render(ctx, msg.TemplateName, msg.TemplateContent)
		if err != nil {
			return nil, err
		}

		msg.HTML = rendered.HTML
		msg.Text = rendered.Text
		if msg.Subject == "" {
			msg.Subject = rendered.Subject
		}
		res.HTML, res.Text = rendered.HTML, rendered.Text
	}

	if !msg.HasHeader("X-Mailer") {
		msg.SetHeader("X-Mailer", c.mailer)
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.config.Transport.Timeout)
	defer cancel()

	sent, err := c.transport.Send(sendCtx, &msg)
	if err != nil {
		return nil, err
	}

	res.Response = sent.Response
	res.MessageID = sent.MessageID
	res.Transport = sent.Transport
	if res.Transport == "" {
		res.Transport = c.transport.Name()
	}

	return res, nil
}

// SendAsync runs Send on a new goroutine and invokes cb exactly once with
// its outcome. A nil cb discards the outcome.
func (c *Client) SendAsync(ctx context.Context, overrides *Message, cb Callback) {
	go func() {
		res, err := c.Send(ctx, overrides)
		if cb != nil {
			cb(res, err)
		}
	}()
}

// Options returns a copy of the configuration the client was built with.
func (c *Client) Options() Config {
	return c.config.clone()
}

// Close releases the transport. Calls after the first return nil.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
	}

	c.renderMu.Lock()
	if eng, ok := c.renderer.(*TemplateEngine); ok {
		eng.Reset()
	}
	c.renderMu.Unlock()

	c.logger.Debug("mailkit client closed")
	if err := c.closeLog(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
	}

	return errors.Join(errs...)
}

// templateRenderer prepares the template engine on first use. A failed
// preparation is retried by the next templated send.
func (c *Client) templateRenderer() (TemplateRenderer, error) {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	if c.renderer != nil {
		return c.renderer, nil
	}

	eng, err := NewTemplateEngine(c.config.TemplatesDir, c.config.TemplateEngineOptions)
	if err != nil {
		return nil, err
	}
	c.renderer = eng

	return eng, nil
}

func (c *Client) closeLog() error {
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

// createTransport builds the transport selected by config.
func createTransport(config Config) (Transport, error) {
	if config.transport != nil {
		return config.transport, nil
	}
	if config.DryRun {
		return dryrun.NewTransport(), nil
	}

	settings := cloneSettings(config.Transport.Settings)

	switch config.Transport.Type {
	case TransportSMTP:
		return smtp.NewTransport(settings)
	case TransportAWSSES:
		return ses.NewTransport(settings)
	case TransportSendGrid:
		return sendgrid.NewTransport(settings)
	case TransportMailgun:
		return mailgun.NewTransport(settings)
	case TransportResend:
		return resend.NewTransport(settings)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", config.Transport.Type)
	}
}

func cloneSettings(s TransportSettings) TransportSettings {
	out := make(TransportSettings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
