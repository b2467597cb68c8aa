package core

import (
	"errors"
	"fmt"

	xerrors "restaurant-pos/internal/xpkg/errors"
)

var (
	ErrParseCmd = xerrors.ErrParseCmd
	ErrHelp     = xerrors.ErrHelp

	ErrRMQConn = xerrors.ErrRMQConn
	ErrMBConn  = xerrors.ErrMBConn
	ErrMBCh    = xerrors.ErrMBCh

	ErrMalformedMessage = errors.New("malformed notification message")
	ErrNoRecipient      = errors.New("notification has no recipient phone")
)

// ErrorKind is the provider-independent classification of a channel failure.
type ErrorKind string

const (
	// KindSessionExpired means the customer's session window is closed and a
	// template has to reopen it.
	KindSessionExpired ErrorKind = "session_expired"
	KindRejected       ErrorKind = "rejected"
	KindTransient      ErrorKind = "transient"
)

// ChannelError is what every channel adapter returns on failure.
type ChannelError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *ChannelError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("channel %s (code %d): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("channel %s: %s", e.Kind, msg)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// KindOf returns the classification of err. Errors that did not come from a
// channel adapter count as transient.
func KindOf(err error) ErrorKind {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

type Stage string

const (
	StageDirect            Stage = "direct"
	StageTemplateOpen      Stage = "template-open"
	StagePostTemplateRetry Stage = "post-template-retry"
)

// NotificationError records which step of the send protocol failed. It is
// logged and never handed back to order handling.
type NotificationError struct {
	Stage Stage
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed at %s: %v", e.Stage, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
