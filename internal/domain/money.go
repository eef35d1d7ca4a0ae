package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a client supplied monetary amount and validates it.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount requires a positive amount with at most MoneyPlaces decimals.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(MoneyPlaces)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, MoneyPlaces)
	}
	return nil
}

// FormatMoney renders an amount with exactly MoneyPlaces decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
