package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price is a fixed-point amount in minor units (cents).
//
// WHY NOT float64?
// 0.1 + 0.2 != 0.3 in binary floating point. Prices are stored, compared and
// sorted as integers so "$15.00 <= $15.00" is always exact, and they are
// rendered as a two-decimal string ("15.00") on the wire.
type Price int64

var (
	errPriceEmpty     = errors.New("price is required")
	errPriceFormat    = errors.New("price must be a decimal number like 19.99")
	errPriceNegative  = errors.New("price must not be negative")
	errPricePrecision = errors.New("price must have at most two decimal places")
	errPriceRange     = errors.New("price is too large")
)

// maxPrice matches NUMERIC(10,2): eight integer digits.
const maxPrice Price = 99999999_99

// ParsePrice parses user input such as "15", "15.5" or "15.50".
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errPriceEmpty
	}
	if strings.HasPrefix(s, "-") {
		return 0, errPriceNegative
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && (!hasDot || frac == "") {
		return 0, errPriceFormat
	}
	if hasDot && frac == "" {
		return 0, errPriceFormat
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, errPriceFormat
	}
	if len(frac) > 2 {
		return 0, errPricePrecision
	}
	if len(strings.TrimLeft(whole, "0")) > 8 {
		return 0, errPriceRange
	}

	var units int64
	if whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, errPriceFormat
		}
		units = n * 100
	}
	frac = (frac + "00")[:2]
	cents, _ := strconv.ParseInt(frac, 10, 64)

	p := Price(units + cents)
	if p > maxPrice {
		return 0, errPriceRange
	}
	return p, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the price with exactly two fractional digits.
func (p Price) String() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Float64 is for display and comparisons in tests only.
func (p Price) Float64() float64 {
	return float64(p) / 100
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts both "15.00" and 15.
func (p *Price) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return errPriceFormat
		}
		s = n.String()
	}
	parsed, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Bounds from query strings arrive as floats ("minPrice=9.99"). The epsilon
// absorbs binary representation error, so 0.29 becomes 29 cents, not 28.

const centsEpsilon = 1e-6

// AtLeast returns the smallest price >= v.
func AtLeast(v float64) Price {
	return Price(math.Ceil(v*100 - centsEpsilon))
}

// AtMost returns the largest price <= v.
func AtMost(v float64) Price {
	return Price(math.Floor(v*100 + centsEpsilon))
}
