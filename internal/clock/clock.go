package clock

import "time"

// Clock abstracts time so accrual and daily-reset logic can be tested
// against a fixed instant.
type Clock interface {
	Now() time.Time
}

type Real struct{}

// Now returns the current time using the system clock.
func (Real) Now() time.Time {
	return time.Now()
}
