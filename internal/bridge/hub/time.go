package hub

import "time"

// nowMs returns the current time as Unix milliseconds, the unit the ring
// buffer and replay query parameters use throughout (spec §4.4, §6).
func nowMs() int64 {
	return time.Now().UnixMilli()
}
