package timeparse

import (
	"fmt"
	"strings"
	"time"
)

// FormatDelay renders a delay in the same compact unit vocabulary the parser
// accepts: "2h", "1w 3d", "1m 30s". Zero units are skipped, and seconds are
// dropped entirely once an hour-or-larger unit is present ("2h 2m 3s" renders
// as "2h 2m"). Non-positive delays render as "0s".
func FormatDelay(d time.Duration) string {
	secs := d.Milliseconds() / 1000
	if secs <= 0 {
		return "0s"
	}

	weeks := secs / (7 * 24 * 3600)
	secs %= 7 * 24 * 3600
	days := secs / (24 * 3600)
	secs %= 24 * 3600
	hours := secs / 3600
	secs %= 3600
	minutes := secs / 60
	seconds := secs % 60

	var parts []string
	if weeks > 0 {
		parts = append(parts, fmt.Sprintf("%dw", weeks))
	}
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 && weeks == 0 && days == 0 && hours == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
