package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
	ErrSigningFailed = errors.New("signing failed")

	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientReserves = errors.New("insufficient reserves")
	ErrSlippageExceeded     = errors.New("slippage")
	ErrUnauthorized         = errors.New("only resolver")
	ErrAlreadyResolved      = errors.New("already resolved")
	ErrMarketResolved       = errors.New("market resolved")
	ErrMarketNotResolved    = errors.New("market not resolved")
	ErrNoWinnings           = errors.New("no winnings")
	ErrArithmeticOverflow   = errors.New("arithmetic overflow")
	ErrDivisionByZero       = errors.New("division by zero")
	ErrInvalidDecimals      = errors.New("invalid decimals")
	ErrInsufficientCustody  = errors.New("insufficient custody")
	ErrPoolEmpty            = errors.New("pool empty")
	ErrInvalidFee           = errors.New("invalid fee")
	ErrInvalidQuestion      = errors.New("invalid question")
	ErrInvalidSide          = errors.New("invalid side")

	ErrMarketNotFound = fmt.Errorf("market %w", ErrNotFound)
)

// errorKinds maps sentinel errors to the stable names used in metrics labels,
// audit entries, and journal output. Order matters: ErrMarketNotFound must be
// matched before the ErrNotFound it wraps.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrInsufficientReserves, "InsufficientReserves"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrAlreadyResolved, "AlreadyResolved"},
	{ErrMarketResolved, "MarketResolved"},
	{ErrMarketNotResolved, "MarketNotResolved"},
	{ErrNoWinnings, "NoWinnings"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
	{ErrDivisionByZero, "DivisionByZero"},
	{ErrInvalidDecimals, "InvalidDecimals"},
	{ErrInsufficientCustody, "InsufficientCustody"},
	{ErrPoolEmpty, "PoolEmpty"},
	{ErrInvalidFee, "InvalidFee"},
	{ErrInvalidQuestion, "InvalidQuestion"},
	{ErrInvalidSide, "InvalidSide"},
	{ErrMarketNotFound, "MarketNotFound"},
	{ErrNotFound, "NotFound"},
	{ErrLockHeld, "LockHeld"},
	{ErrSigningFailed, "SigningFailed"},
}

// ErrorKind returns the stable kind name of the first sentinel found in err's
// chain. It returns "" for a nil error and "Internal" for anything unknown.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
