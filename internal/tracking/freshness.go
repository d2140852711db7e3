package tracking

import (
	"fmt"
	"time"
)

// FreshnessLabel renders how old a sample is relative to now. Subscribers
// compute it at display time; calendar dates are in now's location.
func FreshnessLabel(now, ts time.Time) string {
	age := now.Sub(ts)
	switch {
	case age < time.Minute:
		return "Just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age/time.Minute))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age/time.Hour))
	default:
		return ts.In(now.Location()).Format("Jan 2, 2006")
	}
}
