// Package ledger composes the chain, identity, and workflow engines behind a
// single façade so that append and verify are atomic from the caller's
// perspective: everything succeeds or nothing is mutated.
package ledger

import (
	"errors"
	"fmt"
)

// Kind is one of the seven closed taxonomy members every domain error
// belongs to.
type Kind string

const (
	KindInputError        Kind = "input_error"
	KindChainBreak        Kind = "chain_break"
	KindSignatureError    Kind = "signature_error"
	KindWorkflowRejection Kind = "workflow_rejection"
	KindWorkflowBreak     Kind = "workflow_break"
	KindIOError           Kind = "io_error"
	KindIntegrityError    Kind = "integrity_error"
)

// Error is the structured error every façade operation returns on failure:
// a closed Kind, an optional machine-checkable Code, a human Message, and
// any Details needed to act on it programmatically.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, code, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details}
}

// IsInputError reports whether err is a *Error of KindInputError.
func IsInputError(err error) bool { return hasKind(err, KindInputError) }

// IsChainBreak reports whether err is a *Error of KindChainBreak.
func IsChainBreak(err error) bool { return hasKind(err, KindChainBreak) }

// IsSignatureError reports whether err is a *Error of KindSignatureError.
func IsSignatureError(err error) bool { return hasKind(err, KindSignatureError) }

// IsWorkflowRejection reports whether err is a *Error of KindWorkflowRejection.
func IsWorkflowRejection(err error) bool { return hasKind(err, KindWorkflowRejection) }

// IsWorkflowBreak reports whether err is a *Error of KindWorkflowBreak.
func IsWorkflowBreak(err error) bool { return hasKind(err, KindWorkflowBreak) }

// IsIOError reports whether err is a *Error of KindIOError.
func IsIOError(err error) bool { return hasKind(err, KindIOError) }

// IsIntegrityError reports whether err is a *Error of KindIntegrityError.
func IsIntegrityError(err error) bool { return hasKind(err, KindIntegrityError) }

func hasKind(err error, kind Kind) bool {
	var lerr *Error
	if !errors.As(err, &lerr) {
		return false
	}
	return lerr.Kind == kind
}
