package models

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPlaced    Status = "placed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusRejected  Status = "rejected"
)

// ErrOrderTransitionInvalid is matched by every *TransitionError.
var ErrOrderTransitionInvalid = errors.New("order transition invalid")

// forward is the only chain Advance walks; rejected is reachable from placed
// through Reject alone.
var forward = []Status{StatusPlaced, StatusPreparing, StatusReady, StatusDelivered}

const (
	ActionAdvance = "advance"
	ActionAccept  = "accept"
	ActionReject  = "reject"
	ActionEdit    = "edit"
)

type TransitionError struct {
	From   Status
	Action string
	// Final is set when the order is already delivered or rejected.
	Final bool
}

func (e *TransitionError) Error() string {
	if e.Final {
		return fmt.Sprintf("cannot %s order: already final (%s)", e.Action, e.From)
	}
	return fmt.Sprintf("cannot %s order: not in correct preceding state (%s)", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrOrderTransitionInvalid }

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusPreparing, StatusReady, StatusDelivered, StatusRejected:
		return true
	}
	return false
}

// Advance returns the successor of s in the forward chain. For a state with no
// successor, terminal or outside the chain, it returns s unchanged together
// with a TransitionError.
func Advance(s Status) (Status, error) {
	for i, st := range forward {
		if st == s && i+1 < len(forward) {
			return forward[i+1], nil
		}
	}
	return s, &TransitionError{From: s, Action: ActionAdvance, Final: s.Terminal() || !s.Valid()}
}

// Accept moves a placed order to preparing.
func Accept(s Status) (Status, error) {
	return fromPlaced(s, StatusPreparing, ActionAccept)
}

// Reject moves a placed order to rejected.
func Reject(s Status) (Status, error) {
	return fromPlaced(s, StatusRejected, ActionReject)
}

func fromPlaced(s, to Status, action string) (Status, error) {
	if s != StatusPlaced {
		return s, &TransitionError{From: s, Action: action, Final: s.Terminal()}
	}
	return to, nil
}

// CanEdit reports whether the bill of an order in state s may still change.
func CanEdit(s Status) error {
	if s.Terminal() {
		return &TransitionError{From: s, Action: ActionEdit, Final: true}
	}
	return nil
}
