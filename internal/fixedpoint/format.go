package fixedpoint

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// Format renders a scaled integer as a human decimal string, e.g.
// Format(1_500_000, 6) == "1.5".
func Format(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}

// ParseUnits converts a human decimal string ("100.25") into a scaled
// integer with the given number of decimals. Negative values and values with
// more fractional digits than decimals are rejected.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	if decimals > InternalDecimals {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", s, domain.ErrInvalidDecimals)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", s, domain.ErrInvalidAmount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("fixedpoint: parse %q: negative: %w", s, domain.ErrInvalidAmount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("fixedpoint: parse %q: more than %d decimals: %w", s, decimals, domain.ErrInvalidAmount)
	}
	z, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", s, domain.ErrArithmeticOverflow)
	}
	return z, nil
}

// MustParseUnits is ParseUnits for constants and tests.
func MustParseUnits(s string, decimals uint8) *uint256.Int {
	z, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return z
}
