// Package ormerr defines the classified errors returned by the persistence
// layer. Every failure surfaced to callers is an *Error carrying a Kind, so a
// presentation layer can show a message and decide how to react without
// parsing strings.
package ormerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	// KindDuplicateType is returned when a type name is registered twice.
	KindDuplicateType Kind = "DuplicateType"

	// KindInvalidField is returned when a type descriptor has an unusable field.
	KindInvalidField Kind = "InvalidField"

	// KindUnknownType is returned for lookups of unregistered types.
	KindUnknownType Kind = "UnknownType"

	// KindSchemaConflict is returned when an existing table disagrees with the registry.
	KindSchemaConflict Kind = "SchemaConflict"

	// KindNotInitialized is returned when the engine or pool is used before initialization.
	KindNotInitialized Kind = "NotInitialized"

	// KindHandleClosed is returned when a checked-in handle is used.
	KindHandleClosed Kind = "HandleClosed"

	// KindInsertFailed is returned when a batch insert is rejected and rolled back.
	KindInsertFailed Kind = "InsertFailed"

	// KindBlobTooLarge is returned when a binary value exceeds its column limit.
	KindBlobTooLarge Kind = "BlobTooLarge"

	// KindStorageIO covers failures of the underlying file or medium.
	KindStorageIO Kind = "StorageIO"

	// KindInvalidMapping is returned for malformed mapping declarations.
	KindInvalidMapping Kind = "InvalidMapping"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrDuplicateType  = &Error{Kind: KindDuplicateType}
	ErrInvalidField   = &Error{Kind: KindInvalidField}
	ErrUnknownType    = &Error{Kind: KindUnknownType}
	ErrSchemaConflict = &Error{Kind: KindSchemaConflict}
	ErrNotInitialized = &Error{Kind: KindNotInitialized}
	ErrHandleClosed   = &Error{Kind: KindHandleClosed}
	ErrInsertFailed   = &Error{Kind: KindInsertFailed}
	ErrBlobTooLarge   = &Error{Kind: KindBlobTooLarge}
	ErrStorageIO      = &Error{Kind: KindStorageIO}
	ErrInvalidMapping = &Error{Kind: KindInvalidMapping}
)

// Error is a classified persistence error.
type Error struct {
	// Kind is the error classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Type is the record type involved, if any.
	Type string `json:"type,omitempty"`

	// Field is the field involved, if any.
	Field string `json:"field,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	switch {
	case e.Type != "" && e.Field != "":
		msg += fmt.Sprintf(" (type=%s, field=%s)", e.Type, e.Field)
	case e.Type != "":
		msg += fmt.Sprintf(" (type=%s)", e.Type)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithType adds record type context to an error.
func (e *Error) WithType(typeName string) *Error {
	e.Type = typeName
	return e
}

// WithField adds field context to an error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsProgrammerError reports lifecycle violations that must never be retried.
func IsProgrammerError(err error) bool {
	switch KindOf(err) {
	case KindHandleClosed, KindNotInitialized:
		return true
	}
	return false
}
