package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrInvalidExecution     = errors.New("invalid execution")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrTransientProvider    = errors.New("transient provider failure")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// InvalidExecutionError rejects an execution wholesale. The position it
// targeted is left untouched.
type InvalidExecutionError struct {
	Execution *Execution
	Reason    string
}

// NewInvalidExecutionError builds an InvalidExecutionError for e.
func NewInvalidExecutionError(e *Execution, reason string) *InvalidExecutionError {
	return &InvalidExecutionError{Execution: e, Reason: reason}
}

func (e *InvalidExecutionError) Error() string {
	id := ""
	if e.Execution != nil {
		id = e.Execution.ExecutionID
	}
	return fmt.Sprintf("invalid execution %q: %s", id, e.Reason)
}

// Is matches ErrInvalidExecution.
func (e *InvalidExecutionError) Is(target error) bool {
	return target == ErrInvalidExecution
}

// InsufficientDataError is returned when a computation lacks the data it needs,
// e.g. a replay with fewer than two usable bars.
type InsufficientDataError struct {
	Subject string // position id or symbol
	Have    int
	Need    int
	Reason  string
}

func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data for %s: %s (have %d, need %d)", e.Subject, e.Reason, e.Have, e.Need)
	}
	return fmt.Sprintf("insufficient data for %s: have %d, need %d", e.Subject, e.Have, e.Need)
}

// Is matches ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// TransientProviderError wraps a retryable market data failure.
type TransientProviderError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *TransientProviderError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("price provider %s failed after %d attempts: %v", e.Symbol, e.Attempts, e.Err)
	}
	return fmt.Sprintf("price provider %s: %v", e.Symbol, e.Err)
}

func (e *TransientProviderError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransientProvider.
func (e *TransientProviderError) Is(target error) bool {
	return target == ErrTransientProvider
}

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// Is matches ErrInvalidConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// IsTransient reports whether err is (or wraps) a TransientProviderError.
func IsTransient(err error) bool {
	var t *TransientProviderError
	return errors.As(err, &t)
}
