package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transport defines the interface for mail delivery backends.
// Implementations handle backend-specific logic for delivering a message.
type Transport interface {
	// Send delivers a single fully-populated message.
	Send(ctx context.Context, msg *Message) (*SendResult, error)

	// ValidateConfig validates the transport configuration.
	// Returns an error if the configuration is invalid or incomplete.
	ValidateConfig() error

	// Name returns the transport's name for identification and logging.
	Name() string

	// Close releases any connections held by the transport.
	Close() error
}

// TransportSettings represents the opaque configuration handed to a transport.
type TransportSettings map[string]string

// Get retrieves a configuration value by key.
func (ts TransportSettings) Get(key string) string {
	return ts[key]
}

// Set sets a configuration value.
func (ts TransportSettings) Set(key, value string) {
	ts[key] = value
}

// GetBool reports whether the value stored under key is a true boolean literal.
func (ts TransportSettings) GetBool(key string) bool {
	v, err := strconv.ParseBool(ts[key])
	return err == nil && v
}

// GetInt returns the integer stored under key, or def when it is missing.
func (ts TransportSettings) GetInt(key string, def int) (int, error) {
	raw := ts[key]
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewValidationErrorWithValue(key, "invalid integer", raw)
	}
	return v, nil
}

// Attachment represents a file attached to a message.
type Attachment struct {
	// Filename is the name of the file as it will appear in the email.
	Filename string

	// ContentType is the MIME content type of the file.
	// If empty, it will be detected from the filename extension.
	ContentType string

	// Content holds the raw file bytes.
	Content []byte
}

// DetectContentType returns ContentType, or a type guessed from the filename extension.
func (a Attachment) DetectContentType() string {
	if a.ContentType != "" {
		return a.ContentType
	}

	switch strings.ToLower(filepath.Ext(a.Filename)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".csv":
		return "text/csv"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// Message is the record handed to a transport. Address fields hold RFC 5322
// addresses or comma separated address lists.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	CC      string `json:"cc,omitempty"`
	BCC     string `json:"bcc,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`

	// TemplateName names a directory under the templates directory.
	TemplateName string `json:"template_name,omitempty"`
	// TemplateContent is the data the template is executed with.
	TemplateContent any `json:"template_content,omitempty"`

	Headers map[string]string `json:"headers,omitempty"`
	// Metadata carries transport-specific fields (tags, custom args, variables).
	Metadata    map[string]string `json:"metadata,omitempty"`
	Attachments []Attachment      `json:"-"`
}

// MessageKind tells a plain message from one that must be rendered first.
type MessageKind int

const (
	// KindPlain is delivered with its own Text and HTML.
	KindPlain MessageKind = iota
	// KindTemplated gets Text and HTML from the template renderer.
	KindTemplated
)

// String returns the string representation of the kind.
func (k MessageKind) String() string {
	if k == KindTemplated {
		return "templated"
	}
	return "plain"
}

// ErrTemplatesDirRequired is returned for a templated message when no templates
// directory is configured.
var ErrTemplatesDirRequired = errors.New("template name set but no templates directory configured")

// Merge returns a new message built from defaults with every non-zero field of
// overrides taking precedence. Maps and slices are replaced, never merged, and
// the result owns its own map containers.
func Merge(defaults, overrides Message) Message {
	out := defaults

	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.From, overrides.From)
	pick(&out.To, overrides.To)
	pick(&out.CC, overrides.CC)
	pick(&out.BCC, overrides.BCC)
	pick(&out.ReplyTo, overrides.ReplyTo)
	pick(&out.Subject, overrides.Subject)
	pick(&out.Text, overrides.Text)
	pick(&out.HTML, overrides.HTML)
	pick(&out.TemplateName, overrides.TemplateName)

	if overrides.TemplateContent != nil {
		out.TemplateContent = overrides.TemplateContent
	}
	if len(overrides.Headers) > 0 {
		out.Headers = overrides.Headers
	}
	if len(overrides.Metadata) > 0 {
		out.Metadata = overrides.Metadata
	}
	if len(overrides.Attachments) > 0 {
		out.Attachments = overrides.Attachments
	}

	out.Headers = maps.Clone(out.Headers)
	out.Metadata = maps.Clone(out.Metadata)
	if out.Attachments != nil {
		out.Attachments = append([]Attachment(nil), out.Attachments...)
	}

	return out
}

// Kind decides once whether the message is plain or templated. A template
// name without configured templates is an error rather than a plain send.
func (m *Message) Kind(templatesConfigured bool) (MessageKind, error) {
	if strings.TrimSpace(m.TemplateName) == "" {
		return KindPlain, nil
	}
	if !templatesConfigured {
		return KindPlain, ErrTemplatesDirRequired
	}
	return KindTemplated, nil
}

// SetHeader sets a header, allocating the map when needed.
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}

// HasHeader reports whether a header is set, ignoring key case.
func (m *Message) HasHeader(key string) bool {
	for k := range m.Headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// Recipients holds the parsed destination addresses of a message.
type Recipients struct {
	To  []*mail.Address
	CC  []*mail.Address
	BCC []*mail.Address
}

// All returns To, CC and BCC combined.
func (r Recipients) All() []*mail.Address {
	all := make([]*mail.Address, 0, len(r.To)+len(r.CC)+len(r.BCC))
	all = append(all, r.To...)
	all = append(all, r.CC...)
	all = append(all, r.BCC...)
	return all
}

// Sender parses the From field.
func (m *Message) Sender() (*mail.Address, error) {
	addr, err := mail.ParseAddress(m.From)
	if err != nil {
		return nil, NewValidationErrorWithValue("from", "invalid sender address", m.From)
	}
	return addr, nil
}

// Recipients parses To, CC and BCC.
func (m *Message) Recipients() (Recipients, error) {
	var (
		r   Recipients
		err error
	)
	if r.To, err = parseList("to", m.To); err != nil {
		return Recipients{}, err
	}
	if len(r.To) == 0 {
		return Recipients{}, NewValidationError("to", "at least one recipient required")
	}
	if r.CC, err = parseList("cc", m.CC); err != nil {
		return Recipients{}, err
	}
	if r.BCC, err = parseList("bcc", m.BCC); err != nil {
		return Recipients{}, err
	}
	return r, nil
}

func parseList(field, raw string) ([]*mail.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	list, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil, &ValidationError{Field: field, Message: "invalid address list", Value: raw, Cause: err}
	}
	return list, nil
}

// FormatAddresses renders addresses in their RFC 5322 form.
func FormatAddresses(addrs []*mail.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// SendResult contains the outcome of delivering a single message.
type SendResult struct {
	// Response is the human readable answer of the backend, e.g. an SMTP reply line.
	Response string

	// MessageID is the identifier assigned by the backend, if any.
	MessageID string

	// Transport is the name of the transport that delivered the message.
	Transport string

	// Timestamp when the message was accepted.
	Timestamp time.Time
}

// ValidationError represents a validation error with specific field information.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is the validation error message.
	Message string

	// Value is the invalid value (optional).
	Value any

	// Cause is the underlying parse error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation error in %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// TransportError represents a delivery failure reported by a transport.
type TransportError struct {
	// Transport is the name of the transport that generated the error.
	Transport string

	// Code is a short machine readable failure code.
	Code string

	// Message is the error message.
	Message string

	// StatusCode is the HTTP status code (for HTTP-based transports).
	StatusCode int

	// IsRetryable indicates whether the caller may try again.
	IsRetryable bool

	// IsTemporary indicates whether the error is temporary.
	IsTemporary bool

	// Cause is the underlying error that caused this transport error.
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport %s error [%s] (status: %d): %s",
			e.Transport, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport %s error [%s]: %s", e.Transport, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for errors.Is.
func (e *TransportError) Is(target error) bool {
	te, ok := target.(*TransportError)
	if !ok {
		return false
	}
	return e.Transport == te.Transport && e.Code == te.Code
}

// Retryable implements RetryableError for TransportError.
func (e *TransportError) Retryable() bool {
	return e.IsRetryable
}

// Temporary implements TemporaryError for TransportError.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// RetryableError interface indicates whether an error can be retried.
type RetryableError interface {
	Retryable() bool
}

// TemporaryError interface indicates whether an error is temporary.
type TemporaryError interface {
	Temporary() bool
}

// NewTransportError creates a new transport error.
func NewTransportError(transport, code, message string, cause error) *TransportError {
	return &TransportError{
		Transport: transport,
		Code:      code,
		Message:   message,
		Cause:     cause,
	}
}

// NewTemporaryTransportError creates a transport error the caller may retry.
func NewTemporaryTransportError(transport, code, message string, cause error) *TransportError {
	return &TransportError{
		Transport:   transport,
		Code:        code,
		Message:     message,
		IsRetryable: true,
		IsTemporary: true,
		Cause:       cause,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorWithValue creates a new validation error with a value.
func NewValidationErrorWithValue(field, message string, value any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}

// IsTemporary checks if an error is temporary.
func IsTemporary(err error) bool {
	var te TemporaryError
	if errors.As(err, &te) {
		return te.Temporary()
	}
	return false
}
