package chat

import (
	"fmt"
	"time"
)

// relativeTime renders a message's age at day/hour/minute granularity.
// Anything under a minute is "Just now"; minutes show only while under
// an hour, hours only while under a day.
func relativeTime(now, ts time.Time) string {
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days == 0 && hours == 0 && minutes == 0:
		return "Just now"
	case days == 0 && hours == 0:
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case days == 0:
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
