package profile

import "errors"

// ErrNotFound is returned when a profile lookup finds no matching record.
var ErrNotFound = errors.New("profile not found")

// ErrProfileExists is returned when a create collides with an existing row
// for the same user or GitHub login. Publish uses it to detect a concurrent
// publish racing past the initial lookup.
var ErrProfileExists = errors.New("profile already exists")

// ErrInvalidLimit is returned when a page limit is outside [1, 50].
// Rejected before any I/O.
var ErrInvalidLimit = errors.New("limit must be between 1 and 50")

// ErrInvalidCursor is returned when a cursor does not name a known published
// profile. Cursors are only valid if a previous page returned them.
var ErrInvalidCursor = errors.New("unknown pagination cursor")
