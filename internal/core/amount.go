// Package core provides the grocery-budget domain types.
//
// This file contains parsing of expense amounts. Amounts are plain
// base-10 integers in contract units, so they are kept as math/big values
// and never pass through floating point.
package core

import (
	"math/big"
	"strings"
)

// ParseAmount converts a form value into a non-negative integer amount.
//
// Surrounding whitespace is ignored. Signs, decimal separators, exponents
// and hex prefixes are rejected, as are values that do not fit a uint256.
//
// Examples:
//
//	ParseAmount("5")    -> 5, nil
//	ParseAmount(" 42 ") -> 42, nil
//	ParseAmount("-5")   -> nil, *ParseError
//	ParseAmount("abc")  -> nil, *ParseError
func ParseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, &ParseError{Input: s, Err: ErrInvalidAmount}
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return nil, &ParseError{Input: s, Err: ErrInvalidAmount}
		}
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, &ParseError{Input: s, Err: ErrInvalidAmount}
	}
	if v.BitLen() > 256 {
		return nil, &ParseError{Input: s, Err: ErrAmountOverflow}
	}
	return v, nil
}

// FormatAmount renders a contract integer for display, "0" for nil.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
