// Package errkind defines the tagged error kinds used across the engine:
// a small struct carrying a Kind, a human message, and an optional wrapped
// cause, with errors.Is/As helpers over the Kind.
package errkind

import (
	"errors"
	"fmt"
)

// Kind tags an error with its failure category.
type Kind string

const (
	Configuration    Kind = "configuration"
	Validation       Kind = "validation"
	Provider         Kind = "provider"
	Timeout          Kind = "timeout"
	Cancelled        Kind = "cancelled"
	RateLimit        Kind = "rate_limit"
	ApprovalRequired Kind = "approval_required"
	ToolExecution    Kind = "tool_execution"
	ResumeRefused    Kind = "resume_refused"
	TerminationKind  Kind = "termination_reached"
)

// Error is a tagged error with a category, message, and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Sentinel errors for control-flow checks that don't need a message.
var (
	ErrMaxIterations    = errors.New("max iterations exceeded")
	ErrNoProvider       = errors.New("no provider configured")
	ErrBackpressure     = errors.New("backpressure: slow consumer")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrAgentNotFound    = errors.New("agent not found")
	ErrWorkflowCyclic   = errors.New("workflow graph is cyclic")
	ErrWorkflowNoRoot   = errors.New("workflow has no root steps")
	ErrWorkflowNoTerm   = errors.New("workflow has no terminal steps")
	ErrTypeMismatch     = errors.New("step output type is not assignable to downstream input type")
	ErrStructureChanged = errors.New("workflow structure hash does not match checkpoint")
)
