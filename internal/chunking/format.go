package chunking

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// currencySymbols maps the ISO codes the product supports to their display
// symbols. Unknown codes render as "CODE 1,234.56".
var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"CHF": "CHF ",
	"AUD": "A$",
	"CAD": "C$",
}

// count renders an integer with thousands separators.
func count(n int64) string {
	return humanize.Comma(n)
}

// money renders an amount with its currency symbol and thousands separators.
func money(amount float64, currency string) string {
	sym, ok := currencySymbols[currency]
	if !ok {
		return fmt.Sprintf("%s %s", currency, humanize.CommafWithDigits(amount, 2))
	}
	return sym + humanize.CommafWithDigits(amount, 2)
}

// pct renders a percentage with one decimal place.
func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// delta renders a signed percentage change, always carrying the sign so
// "+0.0%" and "-3.2%" read unambiguously in chunk text.
func delta(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}

// ratio renders a multiplier such as return-on-ad-spend ("3.4x").
func ratio(v float64) string {
	return fmt.Sprintf("%.1fx", v)
}
