// Package money provides fixed-point currency amounts for cost accounting.
// Amounts are stored as an integer count of ten-thousandths of a dollar so
// that thousands of small per-call charges accumulate without floating-point
// drift.
package money

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Scale is the number of minor units per dollar.
const Scale = 10000

// Amount is a monetary value in ten-thousandths of a dollar.
// Amount(10000) == $1.00.
type Amount int64

// FromDollars converts whole dollars to an Amount.
func FromDollars(d int64) Amount {
	return Amount(d * Scale)
}

// Parse converts a decimal string such as "1.25" or "0.0001" to an Amount.
// At most four fractional digits are accepted.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole := s
	frac := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 4 {
		return 0, fmt.Errorf("amount %q has more than 4 fractional digits", s)
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		// Pad to four digits: "25" means 2500 minor units.
		for i := len(frac); i < 4; i++ {
			f *= 10
		}
	}

	a := Amount(w*Scale + f)
	if neg {
		a = -a
	}
	return a, nil
}

// String formats the amount as a decimal dollar string, e.g. "1.2500".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%04d", sign, v/Scale, v%Scale)
}

// MarshalJSON encodes the amount as a decimal string to keep exact values
// out of float-typed JSON numbers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare integer
// count of minor units.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		parsed, err := Parse(s[1 : len(s)-1])
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid money value %s: %w", s, err)
	}
	*a = Amount(v)
	return nil
}

// Value implements driver.Valuer; amounts are stored as BIGINT minor units.
func (a Amount) Value() (driver.Value, error) {
	return int64(a), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*a = Amount(v)
		return nil
	case []byte:
		i, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("cannot scan %q into money.Amount: %w", v, err)
		}
		*a = Amount(i)
		return nil
	case nil:
		*a = 0
		return nil
	default:
		return fmt.Errorf("cannot scan %T into money.Amount", src)
	}
}
