package app

import (
	"fmt"
	"time"
)

// CountdownStarting is shown once the start time has passed.
const CountdownStarting = "Starting..."

// FormatCountdown renders the time until target as "1h 2m 3s", or "2m 3s" under an hour.
func FormatCountdown(target, now time.Time) string {
	diff := target.Sub(now)
	if diff <= 0 {
		return CountdownStarting
	}
	total := int64(diff / time.Second)
	h := total / 3600
	m := (total / 60) % 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
