// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. This enables better error categorization, logging,
// and user experience by providing context-aware error information.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import "fmt"

// Kind is a machine-readable error category.
type Kind string

const (
	// EmptyQuestion indicates the caller supplied an empty question.
	EmptyQuestion Kind = "empty_question"
	// GenerationFailed indicates the language model produced no usable SQL.
	GenerationFailed Kind = "generation_failed"
	// ValidationExhausted indicates the regenerate loop ran out of attempts.
	ValidationExhausted Kind = "validation_exhausted"
	// SandboxBlocked indicates the safety guard rejected a SQL statement.
	SandboxBlocked Kind = "sandbox_blocked"
	// ExecutionFailed indicates the database rejected the query.
	ExecutionFailed Kind = "execution_failed"
	// ExecutionTimeout indicates the query exceeded the server-side time budget.
	ExecutionTimeout Kind = "execution_timeout"
	// TemplateNotFound indicates a prompt template could not be located.
	TemplateNotFound Kind = "template_not_found"
	// SchemaUnavailable indicates the schema cache could not be loaded or generated.
	SchemaUnavailable Kind = "schema_unavailable"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of err when it is an *E, or the empty string.
func KindOf(err error) Kind {
	if e, ok := err.(*E); ok {
		return e.Kind
	}
	return ""
}
