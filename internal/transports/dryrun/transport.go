// Package dryrun provides a transport that accepts every message without
// delivering it.
package dryrun

import (
	"context"
	"sync"
	"time"

	"github.com/lattiq/mailkit/internal/core"
)

// Response is the canned SMTP reply returned for every message.
const Response = "250 2.0.0 OK 1407018531 gc8sm23308604wic.3 - gsmtp"

var _ core.Transport = (*Transport)(nil)

// Transport records messages instead of delivering them.
type Transport struct {
	mu   sync.Mutex
	sent []core.Message
}

// NewTransport creates a new dry-run transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Send records msg and returns Response.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.sent = append(t.sent, *msg)
	t.mu.Unlock()

	return &core.SendResult{
		Response:  Response,
		Transport: t.Name(),
		Timestamp: time.Now(),
	}, nil
}

// Sent returns a copy of every message accepted so far.
func (t *Transport) Sent() []core.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Message(nil), t.sent...)
}

// ValidateConfig always succeeds.
func (t *Transport) ValidateConfig() error {
	return nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "dry_run"
}

// Close is a no-op.
func (t *Transport) Close() error {
	return nil
}
