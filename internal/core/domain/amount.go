package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative integer quantity in a token's smallest unit.
// The zero value is 0. Amounts are immutable; arithmetic returns new values.
type Amount struct {
	v *big.Int
}

// NewAmount creates an Amount from an int64.
func NewAmount(x int64) Amount {
	return Amount{v: big.NewInt(x)}
}

// AmountFromBig copies b into a new Amount.
func AmountFromBig(b *big.Int) Amount {
	if b == nil {
		return Amount{}
	}
	return Amount{v: new(big.Int).Set(b)}
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid integer amount %q", s)
	}
	return Amount{v: b}, nil
}

// ParseUnits converts a human-readable amount ("1.5") into smallest units
// given the token decimals. Fractional digits beyond decimals are rejected.
func ParseUnits(human string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(human))
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", human, err)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Amount{}, fmt.Errorf("amount %q has more than %d decimals", human, decimals)
	}
	return Amount{v: scaled.BigInt()}, nil
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

func (a Amount) Sign() int {
	if a.v == nil {
		return 0
	}
	return a.v.Sign()
}

func (a Amount) IsZero() bool { return a.Sign() == 0 }

func (a Amount) Cmp(b Amount) int { return a.Big().Cmp(b.Big()) }

func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.Big(), b.Big())}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.Big(), b.Big())}
}

// MulBps returns floor(a * bps / 10000).
func (a Amount) MulBps(bps int64) Amount {
	n := new(big.Int).Mul(a.Big(), big.NewInt(bps))
	return Amount{v: n.Quo(n, big.NewInt(10000))}
}

// ToDecimal converts to human units.
func (a Amount) ToDecimal(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(a.Big(), -decimals)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer for NUMERIC columns.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	case int64:
		*a = NewAmount(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

func (a *Amount) scanString(s string) error {
	// NUMERIC may come back as "880.0000" depending on the column scale.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
