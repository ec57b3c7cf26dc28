package campaign

import "time"

// SetClock replaces the service clock in tests.
func SetClock(s *Service, now func() time.Time) { s.now = now }

// SetRetryDelay replaces the pause between outcome-recording attempts.
func SetRetryDelay(s *Service, d time.Duration) { s.retryDelay = d }
