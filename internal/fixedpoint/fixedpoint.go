// Package fixedpoint provides 256-bit scaled-integer arithmetic and decimal
// rescaling between a collateral token's native precision and the 18-decimal
// precision used for outcome shares and reserves.
//
// All division truncates toward zero.
package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// InternalDecimals is the precision of reserves and outcome balances.
const InternalDecimals uint8 = 18

// pow10 holds 10^0 .. 10^18.
var pow10 [InternalDecimals + 1]*uint256.Int

func init() {
	ten := uint256.NewInt(10)
	pow10[0] = uint256.NewInt(1)
	for i := 1; i < len(pow10); i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// MulDiv computes a*b/d with a 512-bit intermediate product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, domain.ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return z, nil
}

// MulDivUp is MulDiv rounded up instead of truncated.
func MulDivUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	// a*b fits in 512 bits; the remainder is nonzero iff mulmod is nonzero.
	if new(uint256.Int).MulMod(a, b, d).IsZero() {
		return z, nil
	}
	return Add(z, uint256.NewInt(1))
}

// Add returns a+b or ErrArithmeticOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return z, nil
}

// Sub returns a-b or ErrArithmeticOverflow when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return z, nil
}

// ScaleFactor returns 10^(18-decimals).
func ScaleFactor(decimals uint8) (*uint256.Int, error) {
	if decimals > InternalDecimals {
		return nil, fmt.Errorf("fixedpoint: %d decimals: %w", decimals, domain.ErrInvalidDecimals)
	}
	return pow10[InternalDecimals-decimals], nil
}

// ToInternal rescales a native amount up to 18 decimals. The conversion is
// exact; it fails only on overflow or invalid decimals.
func ToInternal(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	f, err := ScaleFactor(decimals)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(amount, f)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return z, nil
}

// ToNative rescales an 18-decimal amount down to native precision and returns
// the truncated result together with the dropped remainder (in internal
// units).
func ToNative(amount *uint256.Int, decimals uint8) (native, dust *uint256.Int, err error) {
	f, err := ScaleFactor(decimals)
	if err != nil {
		return nil, nil, err
	}
	native, dust = new(uint256.Int).DivMod(amount, f, new(uint256.Int))
	return native, dust, nil
}

// Pow10 returns 10^n for n <= 18.
func Pow10(n uint8) (*uint256.Int, error) {
	if n > InternalDecimals {
		return nil, fmt.Errorf("fixedpoint: 10^%d: %w", n, domain.ErrInvalidDecimals)
	}
	return new(uint256.Int).Set(pow10[n]), nil
}
