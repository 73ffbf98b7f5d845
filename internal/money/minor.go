// Package money converts storefront decimal amounts into the integer
// minor-unit representation the payment gateway requires.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAmount indicates the amount cannot be charged as given.
var ErrInvalidAmount = errors.New("money: invalid amount")

// ToMinorUnits parses a decimal amount with at most two fractional digits and
// returns round(amount * 100). maxMinor, when positive, caps the accepted
// order value.
func ToMinorUnits(value string, maxMinor int64) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if whole, frac, found := strings.Cut(trimmed, "."); found {
		if len(frac) > 2 {
			return 0, fmt.Errorf("%w: more than two fractional digits", ErrInvalidAmount)
		}
		if whole == "" || frac == "" {
			return 0, fmt.Errorf("%w: malformed decimal %q", ErrInvalidAmount, value)
		}
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: not finite", ErrInvalidAmount)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	minor := int64(math.Round(f * 100))
	if minor <= 0 {
		return 0, fmt.Errorf("%w: rounds to zero", ErrInvalidAmount)
	}
	if maxMinor > 0 && minor > maxMinor {
		return 0, fmt.Errorf("%w: exceeds maximum order value", ErrInvalidAmount)
	}
	return minor, nil
}
