// Package apperrors holds the sentinel errors shared across layers. The
// repositories translate driver errors into these; services wrap them with
// context and handlers map them onto HTTP status codes.
package apperrors

import "errors"

// ErrNotFound marks a lookup that matched no row, including guarded updates
// whose compare-and-swap found no row in the expected state.
var ErrNotFound = errors.New("resource not found")

// ErrValidation marks input that failed a domain or request check.
var ErrValidation = errors.New("validation error")

// ErrDuplicate marks a write rejected by a uniqueness guarantee, such as a
// pricing already claimed by another cashflow.
var ErrDuplicate = errors.New("resource already exists")
