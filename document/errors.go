package document

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigcrunch is matched by every error produced while loading,
// resolving, processing or validating documents.
var ErrConfigcrunch = errors.New("configcrunch error")

var (
	ErrReferencedDocumentNotFound = kindError("referenced document not found")
	ErrCircularDependency         = kindError("circular dependency")
	ErrVariableProcessing         = kindError("variable processing failed")
	ErrInvalidDocument            = kindError("invalid document")
	ErrInvalidHeader              = kindError("invalid header")
	ErrInvalidRemove              = kindError("invalid $remove")
)

// ErrFrozen is returned when a frozen document body is modified.
var ErrFrozen = kindError("document is frozen")

type kind struct {
	msg string
}

func kindError(msg string) error { return &kind{msg: msg} }

func (k *kind) Error() string { return k.msg }

func (k *kind) Is(target error) bool { return target == ErrConfigcrunch }

// Error describes a failure tied to a specific document.
type Error struct {
	Kind     error
	Location string
	Ref      string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Location != "" {
		fmt.Fprintf(&b, " in %s", e.Location)
	}
	if e.Ref != "" {
		fmt.Fprintf(&b, " (ref %s)", e.Ref)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind || target == ErrConfigcrunch
}

func (e *Error) Unwrap() error { return e.Err }

func newError(k error, doc *Document, format string, args ...any) *Error {
	e := &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
	if doc != nil {
		e.Location = doc.Location()
		e.Ref = doc.path
	}
	return e
}

func wrapError(k error, doc *Document, err error, format string, args ...any) *Error {
	e := newError(k, doc, format, args...)
	e.Err = err
	return e
}
