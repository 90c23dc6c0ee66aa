package domain

import (
	"fmt"
	"strings"
)

// Side is one of the two outcome tokens of a binary market.
type Side uint8

const (
	SideYes Side = iota
	SideNo
)

// Sides lists every valid side, in index order.
var Sides = [...]Side{SideYes, SideNo}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

func (s Side) String() string {
	switch s {
	case SideYes:
		return "YES"
	case SideNo:
		return "NO"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// ParseSide accepts "YES"/"NO" in any case.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "YES":
		return SideYes, nil
	case "NO":
		return SideNo, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Outcome is the settlement projection of a market.
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
)

// MarketState is the lifecycle state of a market. Open -> Resolved is one-way.
type MarketState string

const (
	StateOpen     MarketState = "open"
	StateResolved MarketState = "resolved"
)
