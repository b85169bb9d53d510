// Package gwerr defines the error-kind taxonomy shared by every layer of
// the gateway, so the command facade can switch on a caller-facing kind
// instead of string-matching internal errors (with one deliberate
// exception: connection-error reclassification, which does match on
// message text because its whole job is to requalify errors whose origin
// didn't know they'd end up user-facing).
package gwerr

import (
	"errors"
	"fmt"

	"github.com/alarmbridge/isecnet-gateway/internal/model"
)

// Kind identifies one of the error categories exposed across the gateway
// boundary.
type Kind int

const (
	Internal Kind = iota
	InvalidSession
	PasswordMissing
	PanelNotFound
	AuthRejected
	ConnectionUnavailable
	OpenZonesErr
	NoPartitions
	ProtocolError
)

func (k Kind) String() string {
	switch k {
	case InvalidSession:
		return "invalid_session"
	case PasswordMissing:
		return "password_missing"
	case PanelNotFound:
		return "panel_not_found"
	case AuthRejected:
		return "auth_rejected"
	case ConnectionUnavailable:
		return "connection_unavailable"
	case OpenZonesErr:
		return "open_zones"
	case NoPartitions:
		return "no_partitions"
	case ProtocolError:
		return "protocol_error"
	default:
		return "internal"
	}
}

// Error is the concrete error type carried across the gateway boundary.
type Error struct {
	Kind    Kind
	Message string
	Reason  string           // AuthRejected sub-reason: invalid_password | blocked_user | no_permission
	Zones   []model.OpenZone // OpenZonesErr payload
	Wrapped error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an Error with no sub-reason.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewWithReason builds an AuthRejected-style error with a sub-reason.
func NewWithReason(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Message: message, Reason: reason}
}

// Wrap attaches an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, otherwise
// Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
