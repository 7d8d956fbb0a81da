package cash

import "errors"

var (
	// ErrNotFound indicates the requested shortage or guideline does not exist.
	ErrNotFound = errors.New("shortage not found")

	// ErrAlreadyResolved rejects a second resolution of the same shortage.
	ErrAlreadyResolved = errors.New("shortage already resolved")

	// Validation errors.
	ErrInvalidAmount     = errors.New("amounts must not be negative")
	ErrMissingReason     = errors.New("a reason is required")
	ErrInvalidResolution = errors.New("unknown resolution")

	// Guideline errors.
	ErrGuidelineNotFound   = errors.New("guideline not found")
	ErrAlreadyAcknowledged = errors.New("guideline already acknowledged")
)
