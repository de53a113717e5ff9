// internal/emr/errors.go
package emr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an assistant failure.
type Kind string

const (
	// KindConfiguration covers malformed or missing JSON and missing directories.
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	// KindTemplate covers template images that are missing or unreadable.
	KindTemplate Kind = "TEMPLATE_ERROR"
	// KindAction covers any action failure: unknown actions, missing data,
	// input backend errors and pages that never finished loading.
	KindAction Kind = "ACTION_ERROR"
	// KindEMR covers resolution mismatches and unexpected screen state.
	KindEMR Kind = "EMR_ERROR"
)

// Error is the typed error returned by the assistant. Subject names the
// offending field, template, action or file.
type Error struct {
	Kind    Kind
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

// ConfigurationError wraps err as a configuration failure.
func ConfigurationError(subject string, err error) error {
	return newError(KindConfiguration, subject, err)
}

// TemplateError wraps err as a template failure.
func TemplateError(subject string, err error) error {
	return newError(KindTemplate, subject, err)
}

// ActionError wraps err as an action failure.
func ActionError(subject string, err error) error {
	return newError(KindAction, subject, err)
}

// EMRError wraps err as a general assistant failure.
func EMRError(subject string, err error) error {
	return newError(KindEMR, subject, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Outcome is the result of executing one field. A recoverable outcome is
// reported and the page moves on; a fatal one aborts the task.
type Outcome struct {
	field string
	err   error
	fatal bool
}

// Done is the outcome of a field that completed.
var Done = Outcome{}

// Fatal aborts the running task with err.
func Fatal(err error) Outcome { return Outcome{err: err, fatal: true} }

// Recoverable reports reason for field and continues with the next field.
func Recoverable(field string, reason error) Outcome {
	return Outcome{field: field, err: reason}
}

func (o Outcome) IsFatal() bool       { return o.fatal }
func (o Outcome) IsRecoverable() bool { return !o.fatal && o.err != nil }
func (o Outcome) Field() string       { return o.field }
func (o Outcome) Err() error          { return o.err }

// classify maps an action failure inside field to an outcome. Cancellation
// always aborts.
func classify(ctx context.Context, field string, err error) Outcome {
	if err == nil {
		return Done
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal(err)
	}
	return Recoverable(field, err)
}
