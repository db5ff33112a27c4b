package types

import (
	"errors"
	"fmt"
)

// ProcessingError is returned by every frame processing component.
type ProcessingError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeUnsupportedInput = "UNSUPPORTED_INPUT_TYPE"
	ErrCodeIllegalState     = "ILLEGAL_STATE"
	ErrCodeNotRegistered    = "NOT_REGISTERED"
	ErrCodeGL               = "GL_ERROR"
	ErrCodeFrameOrder       = "FRAME_ORDER"
	ErrCodeReleased         = "RELEASED"
	ErrCodeProcessingFailed = "PROCESSING_FAILED"
)

// NewProcessingError creates a new processing error
func NewProcessingError(code, message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err wraps a ProcessingError with the given code.
func IsCode(err error, code string) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
