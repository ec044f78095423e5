// Package errcode defines the wire-visible error taxonomy shared by the
// generation pipeline and the HTTP layer. Every failure that can cross the
// process boundary carries one of these codes; internal failures are wrapped
// with %w and classified via errors.As.
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one failure class. The numeric segment groups codes by
// subsystem: 1xxx config, 2xxx fetch, 3xxx render, 4xxx storage,
// 5xxx generation, 6xxx auth, 7xxx API, 8xxx ops.
type Code string

const (
	ConfigInvalid      Code = "CONFIG_1001"
	ConfigMissingField Code = "CONFIG_1002"
	ConfigBadTimezone  Code = "CONFIG_1003"

	FetchTimeout     Code = "FETCH_2001"
	FetchDNS         Code = "FETCH_2002"
	FetchHTTPStatus  Code = "FETCH_2003"
	FetchBadBody     Code = "FETCH_2004"
	FetchRateLimited Code = "FETCH_2005"
	FetchCircuitOpen Code = "FETCH_2006"

	RenderTemplate   Code = "RENDER_3001"
	RenderBrowser    Code = "RENDER_3002"
	RenderSaveFailed Code = "RENDER_3003"

	StorageWriteFailed Code = "STORAGE_4001"
	StorageReadFailed  Code = "STORAGE_4002"
	StorageBadVersion  Code = "STORAGE_4003"
	StorageLockFailed  Code = "STORAGE_4004"

	GenerationBusy   Code = "GENERATION_5001"
	GenerationFailed Code = "GENERATION_5002"

	AuthInvalidKey Code = "AUTH_6001"

	APIBadRequest       Code = "API_7001"
	APINotFound         Code = "API_7002"
	APIMethodNotAllowed Code = "API_7003"
	APIUnknownTemplate  Code = "API_7004"
	APIInternal         Code = "API_7005"

	OpsCleanupFailed Code = "OPS_8001"
)

// Error pairs a taxonomy code with an underlying cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap attaches a taxonomy code to an underlying error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the taxonomy code from err, or APIInternal when err carries
// no code.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return APIInternal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// HTTPStatus maps a taxonomy code to the HTTP status the API layer returns.
func HTTPStatus(code Code) int {
	switch code {
	case GenerationBusy:
		return http.StatusConflict
	case AuthInvalidKey:
		return http.StatusUnauthorized
	case APIBadRequest, ConfigInvalid, ConfigMissingField, ConfigBadTimezone:
		return http.StatusBadRequest
	case APINotFound, APIUnknownTemplate:
		return http.StatusNotFound
	case APIMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case FetchTimeout:
		return http.StatusGatewayTimeout
	case FetchDNS, FetchHTTPStatus, FetchBadBody, FetchRateLimited, FetchCircuitOpen:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
