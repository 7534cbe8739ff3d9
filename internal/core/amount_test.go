package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"5", "5", true},
		{"0", "0", true},
		{" 42 ", "42", true},
		{"007", "7", true},
		{"123456789012345678901234567890", "123456789012345678901234567890", true},
		{"-5", "", false},
		{"+5", "", false},
		{"abc", "", false},
		{"5.5", "", false},
		{"1e3", "", false},
		{"0x10", "", false},
		{" ", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %v (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%q expected *ParseError, got %v", tc.in, err)
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParseAmountOverflow(t *testing.T) {
	// 2^256 has 78 digits; 80 nines is safely above it.
	_, err := ParseAmount(strings.Repeat("9", 80))
	if !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestFormatAmount(t *testing.T) {
	if FormatAmount(nil) != "0" {
		t.Fatalf("nil should format as 0")
	}
	v, _ := ParseAmount("12")
	if FormatAmount(v) != "12" {
		t.Fatalf("unexpected format %q", FormatAmount(v))
	}
}
