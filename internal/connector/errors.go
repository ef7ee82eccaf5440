package connector

import (
	"fmt"

	"github.com/pkg/errors"
)

// TerminalError is a business failure that must never be retried. The retry
// policy surfaces it immediately and trading operations convert it into a
// rejected order result.
type TerminalError struct {
	Reason string
	Msg    string
}

func (e *TerminalError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("terminal venue error: %s", e.Reason)
	}
	return fmt.Sprintf("terminal venue error (%s): %s", e.Reason, e.Msg)
}

// Terminal marks the error for the retry policy.
func (e *TerminalError) Terminal() bool { return true }

// NewTerminal builds a terminal error with a reject reason.
func NewTerminal(reason, format string, args ...any) *TerminalError {
	return &TerminalError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// BenignError signals that the operation's intent is already satisfied:
// cancelling an order that is already done, or querying an order the venue
// has forgotten. The retry policy treats it as success.
type BenignError struct {
	Msg string
}

func (e *BenignError) Error() string { return e.Msg }

// Benign marks the error for the retry policy.
func (e *BenignError) Benign() bool { return true }

// NewBenign builds a benign idempotency error.
func NewBenign(format string, args ...any) *BenignError {
	return &BenignError{Msg: fmt.Sprintf(format, args...)}
}

// ErrMissingCredentials is a fatal configuration error raised at connector
// construction, before any network call.
var ErrMissingCredentials = errors.New("venue credentials missing or placeholder")

// ErrUnknownVenue is returned by the registry for unregistered venue ids.
type ErrUnknownVenue struct {
	Venue string
}

func (e *ErrUnknownVenue) Error() string {
	return fmt.Sprintf("unknown venue: %s", e.Venue)
}
