package store

import "errors"

// ErrNotFound indicates the requested key does not exist in the store.
var ErrNotFound = errors.New("not found")
