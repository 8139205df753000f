package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/aluiziolira/pricetrack/models"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates a non-success HTTP response.
type ErrHTTPStatus struct {
	Status int
	Err    error
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Errorf("http status %d: %w", e.Status, e.Err).Error()
}

func (e ErrHTTPStatus) Unwrap() error {
	return e.Err
}

// ErrMalformed indicates an unusable URL or response body.
type ErrMalformed struct {
	Err error
}

func (e ErrMalformed) Error() string {
	return fmt.Errorf("malformed: %w", e.Err).Error()
}

func (e ErrMalformed) Unwrap() error {
	return e.Err
}

// Classify wraps a raw transport error into the tagged taxonomy. statusCode
// is consulted when the error itself carries no signal.
func Classify(err error, statusCode int) error {
	if statusCode >= 400 {
		wrapped := err
		if wrapped == nil {
			wrapped = errors.New("request failed")
		}
		return ErrHTTPStatus{Status: statusCode, Err: wrapped}
	}
	if err == nil {
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
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrConnection{Err: err}
	}
	return ErrMalformed{Err: err}
}

// Kind maps a classified error to its outcome label.
func Kind(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindNone
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return models.ErrorKindTimeout
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return models.ErrorKindConnection
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return models.ErrorKindHTTPStatus
	}
	var malformed ErrMalformed
	if errors.As(err, &malformed) {
		return models.ErrorKindMalformed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindCancelled
	}
	return models.ErrorKindConnection
}

// IsTransient reports whether the failure is worth retrying: timeouts,
// connection failures and 5xx responses. Malformed input and 4xx responses
// are permanent.
func IsTransient(err error) bool {
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return true
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return status.Status >= 500
	}
	return false
}

// StatusOf returns the HTTP status carried by the error, if any.
func StatusOf(err error) int {
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return status.Status
	}
	return 0
}
