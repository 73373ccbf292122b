// Package api provides the typed client for the drive web API.
package api

import (
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/quarkpan/quarkpan/internal/constants"
)

// ErrorKind classifies a failed API call.
type ErrorKind int

const (
	// KindRetryable - any failure not otherwise recognized; may succeed on another attempt
	KindRetryable ErrorKind = iota
	// KindFatal - the run cannot continue (storage full, destination gone, session invalid)
	KindFatal
	// KindStaleSignature - download resolution wants a different client identity
	KindStaleSignature
	// KindConflict - name conflict; retrying the same call cannot succeed
	KindConflict
	// KindThrottled - the server answered 429
	KindThrottled
)

func (k ErrorKind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindStaleSignature:
		return "stale-signature"
	case KindConflict:
		return "conflict"
	case KindThrottled:
		return "throttled"
	default:
		return "retryable"
	}
}

// fatalSentinel is a sentinel error that always aborts the run.
type fatalSentinel string

func (e fatalSentinel) Error() string { return string(e) }
func (e fatalSentinel) Fatal() bool   { return true }

// ErrInvalidSession indicates the cookie was rejected or account info came back empty.
var ErrInvalidSession error = fatalSentinel("session is invalid or expired: run 'quarkpan login' again")

// ErrEmptyData indicates a success envelope without the expected payload.
var ErrEmptyData = errors.New("response contained no data")

// APIError is a non-success response from the remote service.
type APIError struct {
	Op         string // endpoint name, e.g. "share.create"
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: code %d: %s", e.Op, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.HTTPStatus)
}

// Kind derives the error class from the response code table.
func (e *APIError) Kind() ErrorKind {
	switch e.Code {
	case constants.CodeCapacityLimit, constants.CodeDestinationMissing:
		return KindFatal
	case constants.CodeStaleSignature:
		return KindStaleSignature
	case constants.CodeFolderNameConflict:
		return KindConflict
	}
	switch e.HTTPStatus {
	case nethttp.StatusTooManyRequests:
		return KindThrottled
	case nethttp.StatusUnauthorized:
		return KindFatal
	}
	return KindRetryable
}

// Fatal reports whether the error must abort the whole run.
func (e *APIError) Fatal() bool { return e.Kind() == KindFatal }

// Throttled reports whether the server rate-limited the call.
func (e *APIError) Throttled() bool { return e.Kind() == KindThrottled }

// Retryable reports whether repeating the same call can succeed.
func (e *APIError) Retryable() bool {
	switch e.Kind() {
	case KindFatal, KindConflict:
		return false
	}
	return true
}

// Unwrap exposes ErrInvalidSession for rejected cookies.
func (e *APIError) Unwrap() error {
	if e.HTTPStatus == nethttp.StatusUnauthorized {
		return ErrInvalidSession
	}
	return nil
}

// IsCode reports whether err is an APIError carrying the given remote code.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// KindOf returns the kind of err, or KindRetryable for non-API errors.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	if errors.Is(err, ErrInvalidSession) {
		return KindFatal
	}
	return KindRetryable
}

// Describe returns an operator-facing explanation for fatal remote codes.
func Describe(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, ErrInvalidSession) {
			return err.Error()
		}
		return ""
	}
	switch apiErr.Code {
	case constants.CodeCapacityLimit:
		return "storage capacity exceeded; check which items were already saved before retrying"
	case constants.CodeDestinationMissing:
		return "destination folder no longer exists; choose another with 'quarkpan config set-dest'"
	case constants.CodeFolderNameConflict:
		return "a folder with that name already exists"
	}
	return ""
}
