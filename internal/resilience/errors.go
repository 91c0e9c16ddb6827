// Package resilience classifies enrichment failures and keeps the persisted
// list of websites that could not be fetched. Nothing here retries on its
// own; re-attempts are always an explicit user action.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorType is the coarse classification stored with a failure.
type ErrorType string

const (
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
)

// TransientError marks a failure that may succeed on a later attempt
// (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
	"unexpected eof",
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, a deadline, or a common network hiccup. A missing host is
// permanent: the website simply does not exist.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		425, // Too Early
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// ClassifyError categorizes an error as transient or permanent.
func ClassifyError(err error) ErrorType {
	if IsTransient(err) {
		return ErrorTransient
	}
	return ErrorPermanent
}
