package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType classifies a domain error
type ErrorType string

const (
	// Supervisor lifecycle errors
	ErrorTypeDuplicateName      ErrorType = "duplicate_name"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeAlreadyRunning     ErrorType = "already_running"
	ErrorTypeNotRunning         ErrorType = "not_running"
	ErrorTypeSpawn              ErrorType = "spawn"
	ErrorTypeTerminationTimeout ErrorType = "termination_timeout"

	// Ambient errors
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeProcess    ErrorType = "process"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError is the error type returned by every package of the supervisor
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Type))
	sb.WriteString(": ")
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(" [")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("]")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the same error for chaining
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

func NewDuplicateNameError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeDuplicateName, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeNotFound, message, cause)
}

func NewAlreadyRunningError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeAlreadyRunning, message, cause)
}

func NewNotRunningError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeNotRunning, message, cause)
}

// NewSpawnError wraps the OS error returned while creating a child process
func NewSpawnError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeSpawn, message, cause)
}

func NewTerminationTimeoutError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeTerminationTimeout, message, cause)
}

func NewValidationError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeValidation, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeIO, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeProcess, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeTimeout, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeCancelled, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeInternal, message, cause)
}

// New builds a domain error of an arbitrary type, used when decoding errors from the wire
func New(errorType ErrorType, message string, cause error) *DomainError {
	return newDomainError(errorType, message, cause)
}

// TypeOf returns the type of the outermost domain error in the chain, or "" if there is none
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// isType reports whether any domain error in the tree has the given type.
// Combined errors are searched member by member.
func isType(err error, errorType ErrorType) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *DomainError:
		if e == nil {
			return false
		}
		if e.Type == errorType {
			return true
		}
		return isType(e.Cause, errorType)
	case interface{ Unwrap() []error }:
		for _, member := range e.Unwrap() {
			if isType(member, errorType) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return isType(e.Unwrap(), errorType)
	default:
		return false
	}
}

func IsDuplicateNameError(err error) bool {
	return isType(err, ErrorTypeDuplicateName)
}

func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

func IsAlreadyRunningError(err error) bool {
	return isType(err, ErrorTypeAlreadyRunning)
}

func IsNotRunningError(err error) bool {
	return isType(err, ErrorTypeNotRunning)
}

func IsSpawnError(err error) bool {
	return isType(err, ErrorTypeSpawn)
}

func IsTerminationTimeoutError(err error) bool {
	return isType(err, ErrorTypeTerminationTimeout)
}

func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

func IsIOError(err error) bool {
	return isType(err, ErrorTypeIO)
}

func IsProcessError(err error) bool {
	return isType(err, ErrorTypeProcess)
}

func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

func IsCancelledError(err error) bool {
	return isType(err, ErrorTypeCancelled)
}

func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}
