package commands

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownVerb is returned by Parse when a label does not start with
	// any verb of the closed set.
	ErrUnknownVerb = errors.New("unknown verb")

	// ErrArity is returned by Parse when the argument does not fit the verb
	// (missing text, or an iot command without exactly two tokens).
	ErrArity = errors.New("wrong argument count")

	// ErrNoHandler marks a command whose verb is valid but has no bound
	// handler in the Registry.
	ErrNoHandler = errors.New("no handler bound")

	// ErrTimeout marks an action that did not settle within the per-action
	// timeout. Its text is the outcome detail.
	ErrTimeout = errors.New("timed out")
)

// ParseError describes why a label could not be turned into a Command.
type ParseError struct {
	Label  string
	Reason string
	Err    error // ErrUnknownVerb or ErrArity
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Label, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// HandlerPanicError carries a panic recovered from a handler so that it can be
// reported as an ordinary failed outcome.
type HandlerPanicError struct {
	Verb  Verb
	Value any
	Stack []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("%s handler panicked: %v", e.Verb, e.Value)
}
