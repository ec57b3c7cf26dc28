package dispatch

import "errors"

// Sentinel errors carried in failed Results.
var (
	ErrUnknownChannel = errors.New("no strategy registered for channel")
	ErrMissingAddress = errors.New("recipient has no email address")
	ErrMissingPhone   = errors.New("recipient has no phone number")
	ErrProviderPanic  = errors.New("provider panicked")
)
