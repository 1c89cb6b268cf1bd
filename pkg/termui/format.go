package termui

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration into a human-readable string
// showing days, hours, minutes and seconds as appropriate
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh%dm%ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

const (
	_ = 1 << (iota * 10)
	kb
	mb
)

// humanateBytes renders stack byte counts; task stacks are small enough
// that anything past MB means corrupted bounds, shown as-is.
func humanateBytes(s uint64) string {
	if s < kb {
		return fmt.Sprintf("%dB", s)
	}
	if s < mb {
		return fmt.Sprintf("%.2fKB", float64(s)/kb)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/mb)
}
