package executor

import (
	"context"
	"errors"
	"strings"
)

// ErrorType classifies a failed execution so the caller can decide whether
// to retry.
type ErrorType string

const (
	ErrorTimeout    ErrorType = "TIMEOUT"
	ErrorResource   ErrorType = "RESOURCE"
	ErrorValidation ErrorType = "VALIDATION"
	ErrorUserCancel ErrorType = "USER_CANCEL"
	ErrorPermanent  ErrorType = "PERMANENT"
	ErrorTransient  ErrorType = "TRANSIENT"
)

// retryable is the set of error types the scheduler will automatically
// retry, up to task.MaxRetries.
var retryable = map[ErrorType]bool{
	ErrorTransient: true,
	ErrorTimeout:   true,
	ErrorResource:  true,
}

// Retryable reports whether an error of this type should be retried.
func Retryable(t ErrorType) bool { return retryable[t] }

// Classify assigns an ErrorType to err using a fixed check order — TIMEOUT,
// then RESOURCE, then VALIDATION, then USER_CANCEL, then PERMANENT, then a
// TRANSIENT default — so classification is deterministic even when an error
// message could plausibly match more than one category.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline"):
		return ErrorTimeout
	case strings.Contains(msg, "resource") || strings.Contains(msg, "memory") || strings.Contains(msg, "disk") ||
		strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") || strings.Contains(msg, "unavailable"):
		return ErrorResource
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "not found") || strings.Contains(msg, "permission"):
		return ErrorValidation
	case strings.Contains(msg, "cancel"):
		return ErrorUserCancel
	case strings.Contains(msg, "permanent"):
		return ErrorPermanent
	default:
		return ErrorTransient
	}
}
