package protocol

import "time"

// Now returns the current time as Unix seconds with fractional precision,
// the timestamp format both outbound message categories carry.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
