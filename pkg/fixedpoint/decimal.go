// Package fixedpoint provides exact fixed-point decimal values for risk
// threshold comparisons. Values are scaled int64 micro-units (6 decimal
// places); binary floating point is never used, so comparisons are
// identical on every platform.
package fixedpoint

import (
	"errors"
	"fmt"
	"strings"
)

// Scale is the number of decimal places carried.
const Scale = 6

const scaleFactor = 1_000_000

// ErrInvalidDecimal marks input that is not a strict decimal string.
var ErrInvalidDecimal = errors.New("fixedpoint: invalid decimal string")

// Decimal is a fixed-point decimal in micro-units.
type Decimal int64

// Parse converts a strict decimal string ("-0.150000", "1.00", "-2") into
// micro-units. At most six fractional digits are accepted; fewer are
// zero-padded. No exponents, no whitespace, no defaults on failure.
func Parse(s string) (Decimal, error) {
	t := strings.TrimSpace(s)
	if t != s || t == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}

	neg := false
	if strings.HasPrefix(t, "-") {
		neg = true
		t = t[1:]
	}

	intPart := t
	fracPart := ""
	hasDot := false
	if dot := strings.IndexByte(t, '.'); dot >= 0 {
		intPart = t[:dot]
		fracPart = t[dot+1:]
		hasDot = true
	}
	if intPart == "" {
		if fracPart == "" {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
		}
		intPart = "0"
	}
	if len(fracPart) > Scale {
		return 0, fmt.Errorf("%w: more than %d fractional digits: %q", ErrInvalidDecimal, Scale, s)
	}
	if !isDigits(intPart) || (hasDot && !isDigits(fracPart)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}

	var whole int64
	for _, c := range intPart {
		d := int64(c - '0')
		if whole > (1<<62)/10 {
			return 0, fmt.Errorf("%w: overflow: %q", ErrInvalidDecimal, s)
		}
		whole = whole*10 + d
	}

	var frac int64
	for i := 0; i < Scale; i++ {
		frac *= 10
		if i < len(fracPart) {
			frac += int64(fracPart[i] - '0')
		}
	}

	v := whole*scaleFactor + frac
	if neg {
		v = -v
	}
	return Decimal(v), nil
}

// MustParse parses a literal decimal and panics on failure. Intended for
// compile-time-known thresholds only.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the value with the full six decimal places, the format
// carried by drawdown figures in truth artifacts.
func (d Decimal) String() string {
	v := int64(d)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%06d", sign, v/scaleFactor, v%scaleFactor)
}

// Cmp returns -1, 0, or +1 comparing d against other.
func (d Decimal) Cmp(other Decimal) int {
	switch {
	case d < other:
		return -1
	case d > other:
		return 1
	default:
		return 0
	}
}

// LessOrEqual reports d <= other exactly.
func (d Decimal) LessOrEqual(other Decimal) bool { return d <= other }

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
