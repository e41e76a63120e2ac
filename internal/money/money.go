// Package money holds the integer arithmetic used for rents, fees and
// commissions. Amounts are minor units (cents); rates are basis points.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const FullBP = 10000

var (
	ErrInvalidRate   = errors.New("rate must be between 0 and 10000 basis points")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrOverflow      = errors.New("amount overflow")
)

func ValidateBP(bp int) error {
	if bp < 0 || bp > FullBP {
		return fmt.Errorf("%w: %d", ErrInvalidRate, bp)
	}
	return nil
}

// ApplyBP returns amount * bp / 10000 rounded half away from zero. The
// amount is split at FullBP before multiplying, so the result is exact for
// every int64 amount and never exceeds it in magnitude.
func ApplyBP(amount int64, bp int) (int64, error) {
	if err := ValidateBP(bp); err != nil {
		return 0, err
	}
	rate := int64(bp)
	whole := amount / FullBP * rate
	part := amount % FullBP * rate
	quotient := part / FullBP
	remainder := part % FullBP
	if remainder < 0 {
		remainder = -remainder
	}
	if remainder*2 >= FullBP {
		if part < 0 {
			quotient--
		} else {
			quotient++
		}
	}
	return Add(whole, quotient)
}

func MulQuantity(unitPrice int64, quantity int) (int64, error) {
	if quantity < 0 || unitPrice < 0 {
		return 0, ErrInvalidAmount
	}
	if quantity != 0 && unitPrice > math.MaxInt64/int64(quantity) {
		return 0, ErrOverflow
	}
	return unitPrice * int64(quantity), nil
}

func Add(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Format renders minor units as a decimal string with two places.
func Format(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// Parse reads a decimal string ("1250", "1250.5", "1250.50") into minor
// units. More than two fraction digits is rejected.
func Parse(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrInvalidAmount
	}
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")
	whole, frac, hasFrac := strings.Cut(value, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	cents := int64(0)
	if hasFrac {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || cents < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
		}
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}
