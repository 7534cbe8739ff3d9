package http

import (
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04"

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}

// shortHash abbreviates a transaction hash to 0x1234…abcd.
func shortHash(hash string) string {
	if len(hash) <= 14 {
		return hash
	}
	return hash[:6] + "…" + hash[len(hash)-4:]
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() || t.Unix() == 0 {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
