package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Class buckets fetch failures by whether a retry could plausibly
// succeed.
type Class int

const (
	ClassUnknown Class = iota
	ClassTransient
	ClassPermanent
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string { return fmt.Errorf("timeout: %w", e.Err).Error() }
func (e ErrTimeout) Unwrap() error { return e.Err }

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string { return fmt.Errorf("connection: %w", e.Err).Error() }
func (e ErrConnection) Unwrap() error { return e.Err }

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string { return fmt.Errorf("forbidden: %w", e.Err).Error() }
func (e ErrForbidden) Unwrap() error { return e.Err }

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string { return fmt.Errorf("not_found: %w", e.Err).Error() }
func (e ErrNotFound) Unwrap() error { return e.Err }

// ErrGone indicates a permanently removed resource (HTTP 410).
type ErrGone struct {
	Err error
}

func (e ErrGone) Error() string { return fmt.Errorf("gone: %w", e.Err).Error() }
func (e ErrGone) Unwrap() error { return e.Err }

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string { return fmt.Errorf("rate_limited: %w", e.Err).Error() }
func (e ErrRateLimited) Unwrap() error { return e.Err }

// ErrHTTPStatus covers the remaining non-2xx statuses.
type ErrHTTPStatus struct {
	Code int
	Err  error
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Errorf("http_status %d: %w", e.Code, e.Err).Error()
}
func (e ErrHTTPStatus) Unwrap() error { return e.Err }

// classifyError maps a transport error and/or HTTP status onto the
// typed error taxonomy.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusGone:
			return ErrGone{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		default:
			return ErrHTTPStatus{Code: statusCode, Err: wrapped}
		}
	}

	return err
}

// errorClass reports whether a classified error is worth retrying.
func errorClass(err error) Class {
	switch {
	case errors.As(err, &ErrTimeout{}), errors.As(err, &ErrConnection{}), errors.As(err, &ErrRateLimited{}):
		return ClassTransient
	case errors.As(err, &ErrNotFound{}), errors.As(err, &ErrGone{}):
		return ClassPermanent
	default:
		return ClassUnknown
	}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var gone ErrGone
	if errors.As(err, &gone) {
		return "gone"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var httpStatus ErrHTTPStatus
	if errors.As(err, &httpStatus) {
		return "http_status"
	}
	return "other"
}
