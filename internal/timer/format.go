package timer

import (
	"fmt"
	"time"
)

// FormatClock renders d as MM:SS, or H:MM:SS once it reaches an hour.
// Partial seconds round up so a countdown shows 00:01 until it truly ends.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64((d + time.Second - 1) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
