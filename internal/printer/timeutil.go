package printer

import (
	"fmt"
	"time"
)

var durationUnits = []struct {
	size time.Duration
	name string
}{
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
	{time.Second, "second"},
}

// HumanDuration renders a duration in its largest whole unit, e.g. "3 hours".
func HumanDuration(d time.Duration) string {
	for _, u := range durationUnits {
		if d < u.size && u.size != time.Second {
			continue
		}
		n := int(d / u.size)
		if n == 1 {
			return "1 " + u.name
		}
		return fmt.Sprintf("%d %ss", n, u.name)
	}
	return ""
}

// TimeAgo returns how long ago t was, e.g. "5 minutes ago (UTC)".
func TimeAgo(t time.Time) string { return TimeAgoFrom(time.Now(), t) }

// TimeAgoFrom is TimeAgo relative to now.
func TimeAgoFrom(now, t time.Time) string {
	diff := now.UTC().Sub(t.UTC())
	if diff < 0 {
		return "in the future (UTC)"
	}
	return HumanDuration(diff) + " ago (UTC)"
}

// FormatTimestamp formats t as "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
