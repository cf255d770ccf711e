package apperr

import "errors"

// ErrInvalidInput is returned when a domain name, record type or check type
// fails validation.
var ErrInvalidInput = errors.New("invalid input")

// ErrRequestFailed marks transport-level failures and non-2xx upstream responses.
// Providers fold it into their Result diagnostics rather than returning it.
var ErrRequestFailed = errors.New("request failed")

// ErrNoExpiry is used when an upstream answered but carried no usable expiry date.
var ErrNoExpiry = errors.New("no expiry date found")

// ErrNotFound is returned by stores when a domain or incident does not exist.
var ErrNotFound = errors.New("not found")
