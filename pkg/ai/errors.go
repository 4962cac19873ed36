package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrTransient marks failures worth retrying: rate limits, overloaded
// servers, dropped connections.
var ErrTransient = errors.New("transient oracle error")

// ErrEmptyResponse is returned when the model produced no usable content.
var ErrEmptyResponse = errors.New("empty response from model")

// MarkTransient wraps err so that IsTransient reports true.
func MarkTransient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransientStatus reports whether an HTTP status code should be retried.
func IsTransientStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// IsTransient classifies err as a transport level failure.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "overloaded")
}
