package exchange

import "github.com/shopspring/decimal"

// Approximate rates to USD, used only when the live API is unreachable.
var fallbackToUSD = map[string]decimal.Decimal{
	"USD": decimal.RequireFromString("1.0"),
	"EUR": decimal.RequireFromString("1.18"),
	"GBP": decimal.RequireFromString("1.35"),
	"JPY": decimal.RequireFromString("0.0064"),
	"KRW": decimal.RequireFromString("0.00089"),
	"CAD": decimal.RequireFromString("0.73"),
	"AUD": decimal.RequireFromString("0.67"),
	"CHF": decimal.RequireFromString("1.27"),
	"CNY": decimal.RequireFromString("0.14"),
	"INR": decimal.RequireFromString("0.011"),
	"SGD": decimal.RequireFromString("0.74"),
}

// FallbackRate returns a static approximate rate, crossing through USD.
// Unknown currencies map to 1.0 so a rate lookup can never abort a ledger
// mutation.
func FallbackRate(from, to string) decimal.Decimal {
	if from == to {
		return decimal.NewFromInt(1)
	}

	fromUSD, okFrom := fallbackToUSD[from]
	toUSD, okTo := fallbackToUSD[to]
	if okFrom && okTo {
		return fromUSD.DivRound(toUSD, 6)
	}
	return decimal.NewFromInt(1)
}
