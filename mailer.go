package mailkit

import (
	"context"
)

// Public interfaces for the mailkit library
type (
	// Mailer defines the facade used by applications.
	Mailer interface {
		// Send merges overrides over the configured defaults, renders the
		// template when one is requested and delivers the message.
		Send(ctx context.Context, overrides *Message) (*Result, error)

		// SendAsync runs Send in the background and reports through cb.
		SendAsync(ctx context.Context, overrides *Message, cb Callback)

		// Close releases the transport. After calling Close, the mailer should not be used.
		Close() error
	}

	// TemplateRenderer turns a named template plus content into message bodies.
	TemplateRenderer interface {
		Render(ctx context.Context, name string, content any) (*Rendered, error)
	}

	// Callback receives the outcome of SendAsync exactly once.
	Callback func(res *Result, err error)
)

var _ Mailer = (*Client)(nil)

// Result is the outcome of a successful Send.
type Result struct {
	// Response is the backend reply, e.g. an SMTP status line.
	Response string

	// MessageID is the identifier assigned by the backend, if any.
	MessageID string

	// Transport is the name of the transport that delivered the message.
	Transport string

	// HTML and Text hold the rendered bodies of a templated message.
	// Both are empty for plain messages.
	HTML string
	Text string
}

// Rendered holds the output of a template render.
type Rendered struct {
	HTML    string
	Text    string
	Subject string
}
