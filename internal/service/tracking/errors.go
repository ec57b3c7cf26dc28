package tracking

import "errors"

// Sentinel errors for the tracking service layer.
var (
	ErrNotFound     = errors.New("no send carries this tracking id")
	ErrInvalidEvent = errors.New("invalid tracking event")
	ErrBadSignature = errors.New("tracking link signature mismatch")
)
