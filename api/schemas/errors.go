package schemas

import "errors"

// ErrRunNotFound is returned by Repository lookups for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")
