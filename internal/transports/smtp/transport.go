package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/mail.v2"

	"github.com/lattiq/mailkit/internal/core"
)

// Transport implements core.Transport on top of a persistent SMTP connection.
// The connection is dialed on first use and kept until Close.
type Transport struct {
	config core.TransportSettings
	dialer *mail.Dialer
	host   string
	pooled bool

	// dial is replaced in tests.
	dial func() (mail.SendCloser, error)

	mu     sync.Mutex
	conn   mail.SendCloser
	closed bool
}

// NewTransport creates a new SMTP transport.
func NewTransport(settings core.TransportSettings) (core.Transport, error) {
	return newTransport(settings)
}

func newTransport(settings core.TransportSettings) (*Transport, error) {
	host := settings.Get("host")
	if host == "" {
		return nil, core.NewValidationError("host", "SMTP host is required")
	}

	port, err := settings.GetInt("port", 587)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, core.NewValidationErrorWithValue("port", "invalid port number", port)
	}

	policy, err := startTLSPolicy(settings.Get("starttls"))
	if err != nil {
		return nil, err
	}

	dialer := mail.NewDialer(host, port, settings.Get("username"), settings.Get("password"))
	dialer.SSL = settings.GetBool("ssl")
	dialer.StartTLSPolicy = policy
	dialer.TLSConfig = &tls.Config{
		ServerName:         host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: settings.GetBool("tls_skip_verify"), // #nosec G402 -- opt-in for local relays
	}
	if localName := settings.Get("local_name"); localName != "" {
		dialer.LocalName = localName
	}
	if raw := settings.Get("timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, core.NewValidationErrorWithValue("timeout", "invalid duration", raw)
		}
		dialer.Timeout = timeout
	}

	t := &Transport{
		config: settings,
		dialer: dialer,
		host:   host,
		pooled: settings.Get("pool") != "false",
	}
	t.dial = dialer.Dial

	return t, nil
}

func startTLSPolicy(raw string) (mail.StartTLSPolicy, error) {
	switch raw {
	case "", "mandatory":
		return mail.MandatoryStartTLS, nil
	case "opportunistic":
		return mail.OpportunisticStartTLS, nil
	case "none":
		return mail.NoStartTLS, nil
	default:
		return 0, core.NewValidationErrorWithValue("starttls", "must be mandatory, opportunistic or none", raw)
	}
}

// Send delivers a message over SMTP.
func (t *Transport) Send(ctx context.Context, msg *core.Message) (*core.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), t.host)
	m, err := t.buildMessage(msg, messageID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, core.NewTransportError(t.Name(), "closed", "transport is closed", nil)
	}

	reused := t.conn != nil
	if err := t.deliver(m); err != nil {
		if !reused {
			return nil, err
		}
		// The server may have dropped an idle pooled session; redial once.
		if err := t.deliver(m); err != nil {
			return nil, err
		}
	}

	if !t.pooled {
		err := t.conn.Close()
		t.conn = nil
		if err != nil {
			return nil, core.NewTransportError(t.Name(), "quit_error", "failed to close session: "+err.Error(), err)
		}
	}

	// mail.v2 does not expose the server reply, report the accepted message id instead.
	return &core.SendResult{
		Response:  "250 Message accepted " + messageID,
		MessageID: messageID,
		Transport: t.Name(),
		Timestamp: time.Now(),
	}, nil
}

// deliver sends m over the open session, dialing one if needed. A failed
// session is closed and not reused. The caller must hold t.mu.
func (t *Transport) deliver(m *mail.Message) error {
	if t.conn == nil {
		conn, err := t.dial()
		if err != nil {
			return core.NewTemporaryTransportError(t.Name(), "dial_error", "failed to connect: "+err.Error(), err)
		}
		t.conn = conn
	}

	if err := mail.Send(t.conn, m); err != nil {
		_ = t.conn.Close()
		t.conn = nil
		return core.NewTemporaryTransportError(t.Name(), "send_error", "failed to send email: "+err.Error(), err)
	}
	return nil
}

// ValidateConfig validates the transport configuration.
func (t *Transport) ValidateConfig() error {
	if t.config.Get("host") == "" {
		return core.NewValidationError("host", "SMTP host is required")
	}
	if _, err := t.config.GetInt("port", 587); err != nil {
		return err
	}
	_, err := startTLSPolicy(t.config.Get("starttls"))
	return err
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

// Close quits the open SMTP session, if any.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// buildMessage converts a core message into a MIME message.
func (t *Transport) buildMessage(msg *core.Message, messageID string) (*mail.Message, error) {
	from, err := msg.Sender()
	if err != nil {
		return nil, err
	}
	rcpt, err := msg.Recipients()
	if err != nil {
		return nil, err
	}

	m := mail.NewMessage()
	m.SetAddressHeader("From", from.Address, from.Name)
	m.SetHeader("To", core.FormatAddresses(rcpt.To)...)
	if len(rcpt.CC) > 0 {
		m.SetHeader("Cc", core.FormatAddresses(rcpt.CC)...)
	}
	if len(rcpt.BCC) > 0 {
		m.SetHeader("Bcc", core.FormatAddresses(rcpt.BCC)...)
	}
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetDateHeader("Date", time.Now())

	for key, value := range msg.Headers {
		m.SetHeader(key, value)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	for _, a := range msg.Attachments {
		content := a.Content
		m.Attach(a.Filename,
			mail.SetHeader(map[string][]string{"Content-Type": {a.DetectContentType()}}),
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, bytes.NewReader(content))
				return err
			}),
		)
	}

	return m, nil
}
