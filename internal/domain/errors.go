package domain

import "errors"

// ErrValidation is the root of all input validation failures.
// Wrapped errors carry the offending field path in their message.
var ErrValidation = errors.New("validation")
