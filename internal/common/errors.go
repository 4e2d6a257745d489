package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error kind codes. These are what gets logged and stored next to a failure.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeUnsupportedFormat    = "UNSUPPORTED_FORMAT"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeExtractionFailed     = "EXTRACTION_FAILED"
	CodeStorageUnavailable   = "STORAGE_UNAVAILABLE"
	CodeTimeout              = "TIMEOUT"
	CodeCancelled            = "CANCELLED"
	CodeInvalidState         = "INVALID_STATE"
	CodeInternal             = "INTERNAL"
	CodeConfig               = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrExtractionFailed     = errors.New("extraction failed")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrTimeout              = errors.New("timeout")
	ErrCancelled            = errors.New("cancelled")
	ErrInvalidState         = errors.New("invalid state")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternal             = errors.New("internal error")
	ErrDatabase             = errors.New("database error")
)

var kindCodes = []struct {
	sentinel error
	code     string
}{
	{ErrNotFound, CodeNotFound},
	{ErrUnsupportedFormat, CodeUnsupportedFormat},
	{ErrInvalidConfiguration, CodeInvalidConfiguration},
	{ErrExtractionFailed, CodeExtractionFailed},
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrTimeout, CodeTimeout},
	{ErrCancelled, CodeCancelled},
	{ErrInvalidState, CodeInvalidState},
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// kindError joins the sentinel with an optional underlying cause so both stay reachable via errors.Is.
func kindError(code string, sentinel error, message string, cause error) *AppError {
	c := sentinel
	if cause != nil {
		c = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return NewAppError(code, message, c)
}

func NotFound(message string) *AppError {
	return kindError(CodeNotFound, ErrNotFound, message, nil)
}

func UnsupportedFormat(message string) *AppError {
	return kindError(CodeUnsupportedFormat, ErrUnsupportedFormat, message, nil)
}

func InvalidConfiguration(message string) *AppError {
	return kindError(CodeInvalidConfiguration, ErrInvalidConfiguration, message, nil)
}

func InvalidConfigurationf(format string, args ...any) *AppError {
	return InvalidConfiguration(fmt.Sprintf(format, args...))
}

func ExtractionFailed(message string, cause error) *AppError {
	return kindError(CodeExtractionFailed, ErrExtractionFailed, message, cause)
}

func StorageUnavailable(message string, cause error) *AppError {
	return kindError(CodeStorageUnavailable, ErrStorageUnavailable, message, cause)
}

func Timeout(message string, cause error) *AppError {
	return kindError(CodeTimeout, ErrTimeout, message, cause)
}

func Cancelled(message string) *AppError {
	return kindError(CodeCancelled, ErrCancelled, message, nil)
}

func InvalidState(message string) *AppError {
	return kindError(CodeInvalidState, ErrInvalidState, message, nil)
}

// KindOf returns the error kind code for err, mapping context errors to TIMEOUT / CANCELLED.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindCodes {
		if errors.Is(err, k.sentinel) {
			return k.code
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	}
	return CodeInternal
}

// GRPCStatus converts an application error into a gRPC status error.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var c codes.Code
	switch KindOf(err) {
	case CodeNotFound:
		c = codes.NotFound
	case CodeUnsupportedFormat, CodeInvalidConfiguration:
		c = codes.InvalidArgument
	case CodeInvalidState:
		c = codes.FailedPrecondition
	case CodeStorageUnavailable:
		c = codes.Unavailable
	case CodeTimeout:
		c = codes.DeadlineExceeded
	case CodeCancelled:
		c = codes.Canceled
	case CodeExtractionFailed:
		c = codes.Aborted
	default:
		c = codes.Internal
	}
	return status.Error(c, err.Error())
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
