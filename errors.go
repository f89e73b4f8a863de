package mailkit

import (
	"errors"
	"fmt"

	"github.com/lattiq/mailkit/internal/core"
)

// Predefined sentinel errors for common cases.
var (
	// ErrSenderRequired is returned by Send when the merged message has no sender.
	ErrSenderRequired = errors.New("Sender email address required") //nolint:staticcheck // user-facing text kept verbatim

	// ErrReceiverRequired is returned by Send when the merged message has no recipient.
	ErrReceiverRequired = errors.New("Receiver email address required") //nolint:staticcheck // user-facing text kept verbatim

	// ErrTemplatesDirRequired is returned when a template is requested but no
	// templates directory is configured.
	ErrTemplatesDirRequired = core.ErrTemplatesDirRequired

	// ErrTemplateNotFound indicates a requested template was not found.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidTemplateName indicates a template name escaping the templates directory.
	ErrInvalidTemplateName = errors.New("invalid template name")

	// ErrInvalidConfiguration indicates invalid configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")
)

// TemplateError represents an error in template processing.
type TemplateError struct {
	// Template is the name of the template that caused the error.
	Template string

	// Operation is the operation that failed (e.g., "parse", "render").
	Operation string

	// Message is the error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error in %s during %s: %s: %v", e.Template, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("template error in %s during %s: %s", e.Template, e.Operation, e.Message)
}

// Unwrap returns the underlying error.
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// NewTemplateError creates a new template error.
func NewTemplateError(template, operation, message string, cause error) *TemplateError {
	return &TemplateError{
		Template:  template,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}
