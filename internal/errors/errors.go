// Package errors wraps engine-internal failures with a stack trace captured
// at the point of origin, so a StoreFailure surfaced at shutdown can still be
// traced back to the store call that produced it.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// EngineError is the concrete error type produced by the engine for anything
// that crosses a package boundary (store failures, malformed wire messages).
type EngineError struct {
	Inner   error
	Message string
}

func New(text string) *EngineError {
	return &EngineError{Message: text}
}

// Wrap annotates inner with a message and a stack trace taken at the call site.
func Wrap(inner error, messagef string, messageArgs ...interface{}) *EngineError {
	return &EngineError{
		Inner:   errors.WithStack(inner),
		Message: fmt.Sprintf(messagef, messageArgs...),
	}
}

func (e *EngineError) Unwrap() error {
	return e.Inner
}

func (e *EngineError) Error() string {
	if e.Inner == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Inner.Error())
}
