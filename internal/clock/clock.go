package clock

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystem returns the wall clock in UTC.
func NewSystem() Clock { return systemClock{} }
