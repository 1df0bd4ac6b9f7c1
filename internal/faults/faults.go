// Package faults classifies the failures the station can run into and how
// each one is recovered from. Only configuration faults are fatal; everything
// else is logged and absorbed by the component that hit it.
package faults

import (
	"errors"
	"fmt"
)

// Kind is the category of a fault
type Kind int

const (
	// KindConfig indicates malformed or missing settings at startup
	KindConfig Kind = iota
	// KindProvider indicates a failed call to the remote catalog
	KindProvider
	// KindTransfer indicates a download that did not complete or had the wrong size
	KindTransfer
	// KindObsoleteRequest indicates data arrived for an evicted prefetch entry
	KindObsoleteRequest
	// KindClientWrite indicates a failed push to one real-time client
	KindClientWrite
	// KindPersistence indicates the rank store could not be read or written
	KindPersistence
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindProvider:
		return "provider"
	case KindTransfer:
		return "transfer"
	case KindObsoleteRequest:
		return "obsolete_request"
	case KindClientWrite:
		return "client_write"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Severity represents how loudly a fault should be reported
type Severity int

const (
	// SeverityDebug is for expected churn such as cancelled downloads
	SeverityDebug Severity = iota
	// SeverityWarning is for recoverable problems worth noticing
	SeverityWarning
	// SeverityError is for failures that degrade service
	SeverityError
	// SeverityFatal stops the process
	SeverityFatal
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified fault
type Error struct {
	Kind        Kind
	Severity    Severity
	Message     string
	Cause       error
	Recoverable bool
}

// New creates a classified fault of the given kind
func New(kind Kind, message string, cause error) *Error {
	severity, recoverable := attributes(kind)
	return &Error{
		Kind:        kind,
		Severity:    severity,
		Message:     message,
		Cause:       cause,
		Recoverable: recoverable,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a fault of the same kind, so sentinel faults
// match any wrapped fault of that kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind && other.Message == ""
}

func attributes(kind Kind) (Severity, bool) {
	switch kind {
	case KindConfig:
		return SeverityFatal, false
	case KindProvider:
		return SeverityError, true // re-login and retry
	case KindTransfer:
		return SeverityWarning, true // next tick refills the queue
	case KindObsoleteRequest:
		return SeverityDebug, true
	case KindClientWrite:
		return SeverityWarning, true // client skipped for one message
	case KindPersistence:
		return SeverityError, true // in-memory ranks keep working
	default:
		return SeverityError, false
	}
}

// KindOf returns the kind of a classified fault anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries a fault of the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsFatal reports whether err must stop the process
func IsFatal(err error) bool {
	var f *Error
	if errors.As(err, &f) {
		return f.Severity == SeverityFatal
	}
	return false
}

// Sentinels usable with errors.Is
var (
	ErrConfig          = &Error{Kind: KindConfig}
	ErrProvider        = &Error{Kind: KindProvider}
	ErrTransfer        = &Error{Kind: KindTransfer}
	ErrObsoleteRequest = &Error{Kind: KindObsoleteRequest}
	ErrClientWrite     = &Error{Kind: KindClientWrite}
	ErrPersistence     = &Error{Kind: KindPersistence}
)
