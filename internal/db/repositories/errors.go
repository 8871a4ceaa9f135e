package repositories

import "errors"

// ErrNotFound reports that a targeted row does not exist. Wrapped by
// operations whose callers need to distinguish a miss from an infrastructure
// failure (errors.Is).
var ErrNotFound = errors.New("not found")
