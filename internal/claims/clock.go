package claims

import "time"

// Clock abstracts time retrieval so creation stamps and last-seen windows
// are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
