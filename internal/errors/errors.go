// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeForbidden  ErrorType = "forbidden"
	// ErrorTypeAborted marks an operation stopped before any write happened,
	// e.g. write permission on a reused file handle was not granted.
	ErrorTypeAborted ErrorType = "aborted"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Err: cause}
}

// NewValidationError is returned for documents and arguments that fail checks.
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeValidation, message, cause)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, cause)
}

// NewForbiddenError 创建禁止错误
func NewForbiddenError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, cause)
}

// NewAbortError reports an operation abandoned before it touched storage.
func NewAbortError(message string) *AppError {
	return NewAppError(ErrorTypeAborted, message, nil)
}

// TypeOf returns the type of the first AppError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return TypeOf(err) == ErrorTypeValidation }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return TypeOf(err) == ErrorTypeNotFound }

// IsForbiddenError 检查是否为禁止错误
func IsForbiddenError(err error) bool { return TypeOf(err) == ErrorTypeForbidden }

// IsAbortError reports whether err is, or wraps, an abort.
func IsAbortError(err error) bool { return TypeOf(err) == ErrorTypeAborted }

// Outcome names the result of a save or load for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsAbortError(err):
		return "aborted"
	case IsValidationError(err):
		return "invalid"
	default:
		return "failed"
	}
}
