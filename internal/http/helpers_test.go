package http

import (
	"testing"
	"time"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Milk  ", "Milk"},
		{"Eggs\x00", "Eggs"},
		{"Bread\r\nrolls", "Breadrolls"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShortHash(t *testing.T) {
	hash := "0x5f2a000000000000000000000000000000000000000000000000000000009c1d"
	if got := shortHash(hash); got != "0x5f2a…9c1d" {
		t.Errorf("shortHash() = %q", got)
	}
	if got := shortHash("0x1"); got != "0x1" {
		t.Errorf("shortHash(short) = %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 0, 0, time.FixedZone("CET", 3600))
	if got := formatTimestamp(ts); got != "2024-03-09 13:05" {
		t.Errorf("formatTimestamp() = %q", got)
	}
	if got := formatTimestamp(time.Unix(0, 0)); got != "" {
		t.Errorf("formatTimestamp(epoch) = %q, want empty", got)
	}
}
