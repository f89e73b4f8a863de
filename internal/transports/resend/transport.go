package resend

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v3"

	"github.com/lattiq/mailkit/internal/core"
)

type api interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Transport implements core.Transport using the Resend API.
type Transport struct {
	client api
	config core.TransportSettings
}

// NewTransport creates a new Resend transport.
func NewTransport(settings core.TransportSettings) (core.Transport, error) {
	apiKey := settings.Get("api_key")
	if apiKey == "" {
		return nil, core.NewValidationError("api_key", "Resend API key is required")
	}

	return &Transport{
		client: resend.NewClient(apiKey).Emails,
		config: settings,
	}, nil
}

// Send delivers a message through Resend.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	from, err := msg.Sender()
	if err != nil {
		return nil, err
	}
	rcpt, err := msg.Recipients()
	if err != nil {
		return nil, err
	}

	req := &resend.SendEmailRequest{
		From:    from.String(),
		To:      core.FormatAddresses(rcpt.To),
		Cc:      core.FormatAddresses(rcpt.CC),
		Bcc:     core.FormatAddresses(rcpt.BCC),
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Headers: msg.Headers,
	}

	for name, value := range msg.Metadata {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: value})
	}

	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.DetectContentType(),
		})
	}

	sent, err := t.client.SendWithContext(ctx, req)
	if err != nil {
		return nil, core.NewTransportError(t.Name(), "send_error", fmt.Sprintf("failed to send email: %v", err), err)
	}

	return &core.SendResult{
		Response:  "queued " + sent.Id,
		MessageID: sent.Id,
		Transport: t.Name(),
		Timestamp: time.Now(),
	}, nil
}

// ValidateConfig validates the transport configuration.
func (t *Transport) ValidateConfig() error {
	if t.config.Get("api_key") == "" {
		return core.NewValidationError("api_key", "Resend API key is required")
	}
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "resend"
}

// Close is a no-op.
func (t *Transport) Close() error {
	return nil
}
