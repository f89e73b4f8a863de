package sendgrid

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/lattiq/mailkit/internal/core"
)

type api interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Transport implements core.Transport for SendGrid.
type Transport struct {
	client api
	config core.TransportSettings
}

// NewTransport creates a new SendGrid transport.
func NewTransport(settings core.TransportSettings) (core.Transport, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "SendGrid API key is required")
	}

	return &Transport{
		client: sendgrid.NewSendClient(apiKey),
		config: settings,
	}, nil
}

// Send delivers a message using the SendGrid v3 API.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	message, err := buildMessage(msg)
	if err != nil {
		return nil, err
	}

	response, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, core.NewTemporaryTransportError(t.Name(), "send_error", "failed to send email: "+err.Error(), err)
	}

	if response.StatusCode >= 400 {
		terr := core.NewTransportError(t.Name(), "api_error", "SendGrid API error: "+response.Body, nil)
		terr.StatusCode = response.StatusCode
		if response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500 {
			terr.IsRetryable = true
			terr.IsTemporary = true
		}
		return nil, terr
	}

	messageID := "unknown"
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return &core.SendResult{
		Response:  fmt.Sprintf("%d %s", response.StatusCode, http.StatusText(response.StatusCode)),
		MessageID: messageID,
		Transport: t.Name(),
		Timestamp: time.Now(),
	}, nil
}

func buildMessage(msg *core.Message) (*mail.SGMailV3, error) {
	from, err := msg.Sender()
	if err != nil {
		return nil, err
	}
	rcpt, err := msg.Recipients()
	if err != nil {
		return nil, err
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(from.Name, from.Address))
	message.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	for _, a := range rcpt.To {
		personalization.AddTos(mail.NewEmail(a.Name, a.Address))
	}
	for _, a := range rcpt.CC {
		personalization.AddCCs(mail.NewEmail(a.Name, a.Address))
	}
	for _, a := range rcpt.BCC {
		personalization.AddBCCs(mail.NewEmail(a.Name, a.Address))
	}
	message.AddPersonalizations(personalization)

	if msg.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}

	// SendGrid requires text/plain before text/html.
	if msg.Text != "" {
		message.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		message.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	for key, value := range msg.Headers {
		message.SetHeader(key, value)
	}
	for key, value := range msg.Metadata {
		message.SetCustomArg(key, value)
	}

	for _, a := range msg.Attachments {
		att := mail.NewAttachment()
		att.SetFilename(a.Filename)
		att.SetType(a.DetectContentType())
		att.SetDisposition("attachment")
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		message.AddAttachment(att)
	}

	return message, nil
}

// ValidateConfig validates the transport configuration.
func (t *Transport) ValidateConfig() error {
	if t.config.Get("api_key") == "" {
		return core.NewValidationError("api_key", "SendGrid API key is required")
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "sendgrid"
}

// Close is a no-op.
func (t *Transport) Close() error {
	return nil
}
