package domain

import "github.com/jonboulle/clockwork"

// clock is the package-level time source used when a report arrives without a
// timestamp and as the default for scorers built without an explicit clock.
// Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the package time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
