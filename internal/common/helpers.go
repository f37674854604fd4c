package common

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

const (
	SOLDecimals     = 9 // SOL has 9 decimals (lamports)
	LamportsPerSOL  = 1_000_000_000
	maxUint64Digits = 20
)

// LamportsToSOL converts lamports to SOL string without float precision loss
func LamportsToSOL(lamports uint64) string {
	return formatWithDecimals(lamports, SOLDecimals)
}

// SOLToLamports converts SOL string to lamports without float precision loss.
// More fractional digits than lamports can hold is an error, not a truncation.
func SOLToLamports(sol string) (uint64, error) {
	return parseWithDecimals(sol, SOLDecimals)
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(24981836, 9) = "0.024981836"
func formatWithDecimals(value uint64, decimals int) string {
	s := strconv.FormatUint(value, 10)

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// parseWithDecimals converts decimal string to integer by removing decimal point
// Example: parseWithDecimals("0.024981836", 9) = 24981836
func parseWithDecimals(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || len(whole) > maxUint64Digits {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	n, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	var frac uint64
	if len(parts) == 2 {
		f := parts[1]
		if f == "" || !isDigits(f) {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		if len(f) > decimals {
			return 0, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
		}
		// Pad fractional part to exact decimals
		f += strings.Repeat("0", decimals-len(f))
		frac, err = strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}

	scale := uint64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	hi, lo := bits.Mul64(n, scale)
	if hi != 0 {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	total, carry := bits.Add64(lo, frac, 0)
	if carry != 0 {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	return total, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
