package mailgun

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/lattiq/mailkit/internal/core"
)

type api interface {
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// Transport implements core.Transport for Mailgun.
type Transport struct {
	client api
	config core.TransportSettings
}

// NewTransport creates a new Mailgun transport.
func NewTransport(settings core.TransportSettings) (core.Transport, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "Mailgun API key is required")
	}

	domain := settings.Get("domain")
	if domain == "" {
		return nil, core.NewValidationError("domain", "Mailgun domain is required")
	}

	client := mailgun.NewMailgun(domain, apiKey)

	// Set base URL if provided (for EU customers)
	if baseURL := settings.Get("base_url"); baseURL != "" {
		client.SetAPIBase(baseURL)
	}

	return &Transport{
		client: client,
		config: settings,
	}, nil
}

// Send delivers a message using Mailgun.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	message, err := t.buildMessage(msg)
	if err != nil {
		return nil, err
	}

	mes, id, err := t.client.Send(ctx, message)
	if err != nil {
		return nil, t.wrapError(err)
	}

	return &core.SendResult{
		Response:  mes,
		MessageID: id,
		Transport: t.Name(),
		Timestamp: time.Now(),
	}, nil
}

func (t *Transport) buildMessage(msg *core.Message) (*mailgun.Message, error) {
	from, err := msg.Sender()
	if err != nil {
		return nil, err
	}
	rcpt, err := msg.Recipients()
	if err != nil {
		return nil, err
	}

	to := core.FormatAddresses(rcpt.To)
	message := mailgun.NewMessage(from.String(), msg.Subject, msg.Text, to...)

	for _, cc := range rcpt.CC {
		message.AddCC(cc.String())
	}
	for _, bcc := range rcpt.BCC {
		message.AddBCC(bcc.String())
	}
	if msg.ReplyTo != "" {
		message.SetReplyTo(msg.ReplyTo)
	}
	if msg.HTML != "" {
		message.SetHTML(msg.HTML)
	}

	for key, value := range msg.Headers {
		message.AddHeader(key, value)
	}
	for key, value := range msg.Metadata {
		if err := message.AddVariable(key, value); err != nil {
			return nil, core.NewTransportError(t.Name(), "variable_error", fmt.Sprintf("failed to add variable %s: %v", key, err), err)
		}
	}

	for _, a := range msg.Attachments {
		message.AddBufferAttachment(a.Filename, a.Content)
	}

	return message, nil
}

func (t *Transport) wrapError(err error) error {
	var ure *mailgun.UnexpectedResponseError
	if errors.As(err, &ure) {
		terr := core.NewTransportError(t.Name(), "api_error", err.Error(), err)
		terr.StatusCode = ure.Actual
		if ure.Actual == http.StatusTooManyRequests || ure.Actual >= 500 {
			terr.IsRetryable = true
			terr.IsTemporary = true
		}
		return terr
	}
	return core.NewTemporaryTransportError(t.Name(), "send_failed", err.Error(), err)
}

// ValidateConfig validates the Mailgun transport configuration.
func (t *Transport) ValidateConfig() error {
	if t.config.Get("api_key") == "" {
		return core.NewValidationError("api_key", "Mailgun API key is required")
	}
	if t.config.Get("domain") == "" {
		return core.NewValidationError("domain", "Mailgun domain is required")
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "mailgun"
}

// Close is a no-op.
func (t *Transport) Close() error {
	return nil
}
