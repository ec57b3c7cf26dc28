package segment

import "errors"

// Sentinel errors for the segment service layer.
var (
	ErrNotFound           = errors.New("segment not found")
	ErrMalformedCriterion = errors.New("malformed segment criterion")
)
