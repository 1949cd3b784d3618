package download

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/desertthunder/ymd/internal/shared"
)

// Class tells the retry loop whether a failure is worth another attempt.
type Class int

const (
	ClassUnknown Class = iota
	ClassRetryable
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// FetchError is a fetch failure tagged by the adapter that produced it.
// [ClassUnknown] defers to the message heuristic.
type FetchError struct {
	Class Class
	Err   error
}

func (e *FetchError) Error() string { return e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable tags err as transient.
func Retryable(err error) error { return &FetchError{Class: ClassRetryable, Err: err} }

// Permanent tags err as not worth retrying.
func Permanent(err error) error { return &FetchError{Class: ClassPermanent, Err: err} }

// retryablePatterns is the fallback heuristic for failures that carry no structured signal.
var retryablePatterns = []string{
	"403",
	"429",
	"http error",
	"connection",
	"timeout",
	"timed out",
	"network",
	"temporary",
	"unavailable",
	"rate limit",
}

// Classify decides whether err is retryable.
//
// Structured signals win: an explicit [FetchError] class, context cancellation,
// [net.Error] timeouts and connection-level errnos. Only when none apply is the
// lowercased message matched against a list of transient phrases.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var fe *FetchError
	if errors.As(err, &fe) && fe.Class != ClassUnknown {
		return fe.Class
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassPermanent
	case errors.Is(err, shared.ErrFileNotFound), errors.Is(err, shared.ErrMissingID):
		return ClassPermanent
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EPIPE):
		return ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}

	if matchesRetryable(err.Error()) {
		return ClassRetryable
	}
	return ClassPermanent
}

func matchesRetryable(msg string) bool {
	msg = strings.ToLower(msg)
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyHTTPStatus maps an HTTP status reported by the fetch tool to a class.
func classifyHTTPStatus(code int) Class {
	switch {
	case code == 403, code == 408, code == 429:
		return ClassRetryable
	case code >= 500 && code <= 599:
		return ClassRetryable
	case code >= 400 && code <= 499:
		return ClassPermanent
	default:
		return ClassUnknown
	}
}

func describe(err error, detail string) error {
	if detail == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, detail)
}
