// Package money holds amount arithmetic for the local currency. Amounts are
// whole minor units; the currency has no fractional component.
package money

import (
	"fmt"
	"strconv"
)

// DefaultRoundingStep is the cash denomination order totals settle on.
const DefaultRoundingStep int64 = 50

// RoundToStep rounds amount to the nearest multiple of step, half-up at the
// boundary. Step must be positive; non-positive steps return the amount
// unchanged.
func RoundToStep(amount, step int64) int64 {
	if step <= 0 {
		return amount
	}
	if amount >= 0 {
		return (amount + step/2) / step * step
	}
	return -((-amount + step/2) / step * step)
}

// LineTotal returns quantity * unitPrice.
func LineTotal(quantity int64, unitPrice int64) int64 {
	return quantity * unitPrice
}

// Format renders an amount for logs and notification payloads.
func Format(amount int64) string {
	return strconv.FormatInt(amount, 10) + " SYP"
}

// FormatRange renders an inclusive amount range.
func FormatRange(min, max int64) string {
	return fmt.Sprintf("%s - %s", Format(min), Format(max))
}
