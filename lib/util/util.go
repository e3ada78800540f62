// Package util contains helper functions used around the code.
package util

import (
	"errors"
	"math/big"
	"strings"
)

// ErrBadAmount is returned for amounts that are not valid positive numbers.
var ErrBadAmount = errors.New("amount is not a valid positive number")

// In returns true if s is found in ss, false otherwise.
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}

	return false
}

// ToBaseUnits converts a decimal amount string ("1.5") into an integer number
// of base units for a currency with the given decimals. Amounts that do not
// parse, are not positive, or carry more fractional digits than the currency
// supports are rejected.
func ToBaseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || amount[0] == '-' || amount[0] == '+' {
		return nil, ErrBadAmount
	}

	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}

	if whole == "" {
		whole = "0"
	}

	if len(frac) > decimals {
		return nil, ErrBadAmount
	}
	// right-pad the fraction up to the currency's decimals
	frac += strings.Repeat("0", decimals-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || v.Sign() <= 0 {
		return nil, ErrBadAmount
	}

	return v, nil
}

// FromBaseUnits renders an integer number of base units as a decimal string
// for a currency with the given decimals. Used for human readable fees.
func FromBaseUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}

	s := v.String()

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	whole, frac := s[:len(s)-decimals], s[len(s)-decimals:]
	frac = strings.TrimRight(frac, "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}

	if neg {
		out = "-" + out
	}

	return out
}
