package refstore

import "time"

// timeNow is the single indirection point for "the current time" in
// this package.
func timeNow() time.Time {
	return time.Now()
}
