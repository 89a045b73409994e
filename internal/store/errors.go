package store

import "errors"

// ErrNotFound is returned when a row does not exist. Services map it onto
// their own sentinel errors.
var ErrNotFound = errors.New("not found")
