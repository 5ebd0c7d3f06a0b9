// Package format renders amounts for reports.
package format

import (
	"strings"

	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/shopspring/decimal"
)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount float64) string {
	formatted, negative := formatCents(amount)
	if negative {
		return "-$" + formatted
	}
	return "$" + formatted
}

// NumericCurrency returns a currency string without a currency symbol but with separators (e.g., "-1,234.56").
func NumericCurrency(amount float64) string {
	formatted, negative := formatCents(amount)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// Rate renders a ratio as a percentage with two decimals (0.5 → "50.00%").
func Rate(ratio float64) string {
	return decimal.NewFromFloat(ratio).Shift(2).StringFixed(constants.DecimalPlaces) + "%"
}

// formatCents rounds half away from zero to cents. A value that rounds to
// zero is never reported as negative.
func formatCents(amount float64) (string, bool) {
	d := decimal.NewFromFloat(amount).Round(constants.DecimalPlaces)
	negative := d.IsNegative()
	formatted := d.Abs().StringFixed(constants.DecimalPlaces)
	intPart, decPart, _ := strings.Cut(formatted, ".")

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}
	return intPart + "." + decPart, negative
}
