// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"fmt"
	"time"
)

// formatUptime formats seconds as a human-readable uptime string.
func formatUptime(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second))
	hours := int(duration / time.Hour)
	minutes := int((duration % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime formats a timestamp as local time with second precision.
func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02T15:04:05")
}
