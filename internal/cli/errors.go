package cli

import (
	"errors"
	"fmt"

	"github.com/kingrea/premerge/internal/config"
	"github.com/kingrea/premerge/internal/registry"
)

const (
	ExitSuccess           = 0
	ExitRuntimeFailure    = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
)

// InvocationError carries the process exit code for a failed command.
type InvocationError struct {
	ExitCode int
	Message  string
	Err      error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *InvocationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

func configError(message string, err error) error {
	if errors.Is(err, config.ErrInvalidAgents) {
		return &InvocationError{ExitCode: ExitRuntimeFailure, Message: message, Err: err}
	}
	return &InvocationError{ExitCode: ExitConfigError, Message: message, Err: err}
}

func runtimeError(message string, err error) error {
	return &InvocationError{ExitCode: ExitRuntimeFailure, Message: message, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invocation *InvocationError
	if errors.As(err, &invocation) {
		return invocation.ExitCode
	}
	if errors.Is(err, registry.ErrUnknownProject) {
		return ExitConfigError
	}
	// changes.ErrDiff, config.ErrInvalidAgents and everything else.
	return ExitRuntimeFailure
}
