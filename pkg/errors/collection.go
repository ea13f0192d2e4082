package errors

import (
	"strings"

	"go.uber.org/multierr"
)

// ErrorCollection gathers errors from operations that must not abort early
type ErrorCollection struct {
	errors []error
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{}
}

// Add appends a non-nil error
func (ec *ErrorCollection) Add(err error) {
	if err != nil {
		ec.errors = append(ec.errors, err)
	}
}

func (ec *ErrorCollection) HasErrors() bool {
	return len(ec.errors) > 0
}

func (ec *ErrorCollection) Errors() []error {
	result := make([]error, len(ec.errors))
	copy(result, ec.errors)
	return result
}

func (ec *ErrorCollection) Error() string {
	messages := make([]string, 0, len(ec.errors))
	for _, err := range ec.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ToError returns nil when empty, otherwise a combined error that unwraps to every member
func (ec *ErrorCollection) ToError() error {
	if !ec.HasErrors() {
		return nil
	}
	return multierr.Combine(ec.errors...)
}
