package backend

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies a failed backend call for the purposes of user messaging
// and retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRejected
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRejected:
		return "rejected"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

type Error struct {
	Op      string
	Kind    Kind
	Status  int
	Message string
	Err     error
	// Canceled is set when the caller's context ended before the backend answered.
	Canceled bool
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("backend %s: %s (%d): %s", e.Op, e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("backend %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("backend %s: %s (%d)", e.Op, e.Kind, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Abandoned reports whether err only means the caller stopped waiting.
func Abandoned(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Canceled
}

// ServerMessage is the human-readable message the backend attached, if any.
func ServerMessage(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return ""
}

const (
	MsgConnection  = "We could not reach the ticketing service. Please try again."
	MsgSession     = "Your session has expired. Please log in again."
	MsgForbidden   = "You are not allowed to do that."
	MsgUnavailable = "The service is temporarily unavailable. Please try again in a moment."
)

// UserMessage turns any error from this package into text safe to show to the
// visitor. Business rejections carry the backend message verbatim; fallback is
// used when the backend sent none.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindNetwork:
		return MsgConnection
	case KindServer:
		return MsgUnavailable
	case KindUnauthorized:
		return MsgSession
	case KindForbidden:
		if msg := ServerMessage(err); msg != "" {
			return msg
		}
		return MsgForbidden
	case KindNotFound, KindConflict, KindRejected:
		if msg := ServerMessage(err); msg != "" {
			return msg
		}
	}
	return fallback
}

func kindForStatus(status int) Kind {
	switch {
	case status == 401:
		return KindUnauthorized
	case status == 403:
		return KindForbidden
	case status == 404:
		return KindNotFound
	case status == 409:
		return KindConflict
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindRejected
	default:
		return KindUnknown
	}
}
