package chathub

import (
	"fmt"

	"github.com/pkg/errors"
)

// Admission failures. All of them reject the upgrade with 401; no session is created.
var (
	ErrMissingCredential = errors.New("credential missing")
	ErrInvalidCredential = errors.New("credential invalid")
	ErrUnknownIdentity   = errors.New("identity does not resolve to a user")
)

// PolicyError closes the session with Code; the offending event has no side effects.
type PolicyError struct {
	Code   int
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy violation (%d): %s", e.Code, e.Reason)
}

// ValidationError discards one inbound event; the session stays open.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "invalid event: " + e.Reason + ": " + e.Err.Error()
	}
	return "invalid event: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PersistenceError aborts one event's side effects and is reported to the originating session only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func invalid(reason string, err error) error {
	return &ValidationError{Reason: reason, Err: err}
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
