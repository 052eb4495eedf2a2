package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decimals is the number of fractional digits an Amount carries.
const Decimals = 6

// Unit is one whole currency unit expressed in minor units.
const Unit Amount = 1_000_000

// Amount is an unsigned fixed-point currency value stored in minor units.
type Amount uint64

// ParseAmount parses a decimal string such as "2", "0.01" or "1.500000".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("invalid amount %q: sign not allowed", s)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > Decimals {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, Decimals)
	}

	var w uint64
	if whole != "" {
		var err error
		w, err = strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}
	if w > math.MaxUint64/uint64(Unit) {
		return 0, fmt.Errorf("invalid amount %q: too large", s)
	}

	var f uint64
	if frac != "" {
		padded := frac + strings.Repeat("0", Decimals-len(frac))
		var err error
		f, err = strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}

	total := w*uint64(Unit) + f
	if total < w*uint64(Unit) {
		return 0, fmt.Errorf("invalid amount %q: too large", s)
	}
	return Amount(total), nil
}

// MustParseAmount is like ParseAmount but panics on error. Intended for
// constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String formats the amount with trailing fractional zeros removed.
func (a Amount) String() string {
	whole := uint64(a) / uint64(Unit)
	frac := uint64(a) % uint64(Unit)
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fs := fmt.Sprintf("%0*d", Decimals, frac)
	return strconv.FormatUint(whole, 10) + "." + strings.TrimRight(fs, "0")
}

// MarshalText encodes the amount as its decimal string, so JSON carries
// amounts as strings and never loses precision.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a decimal string.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// AddAmounts sums amounts, failing on overflow.
func AddAmounts(amounts ...Amount) (Amount, error) {
	var sum Amount
	for _, a := range amounts {
		next := sum + a
		if next < sum {
			return 0, fmt.Errorf("amount overflow")
		}
		sum = next
	}
	return sum, nil
}
