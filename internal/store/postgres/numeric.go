package postgres

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// numericArg renders a uint256 for a NUMERIC(78,0) parameter. nil maps to
// SQL NULL.
func numericArg(v *uint256.Int) any {
	if v == nil {
		return nil
	}
	return v.Dec()
}

// parseNumeric reads a NUMERIC column selected as ::text.
func parseNumeric(s *string) (*uint256.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, err := uint256.FromDecimal(*s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return v, nil
}

// parseAddress reads a hex address column.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
