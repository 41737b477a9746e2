package money

// CurrencyInfo describes one supported currency.
type CurrencyInfo struct {
	Code   string
	Symbol string
	Name   string
}

// DefaultCurrency is the base currency assigned to trips that don't pick one.
const DefaultCurrency = "USD"

// SupportedCurrencies is the allowlist of currencies the ledger accepts.
var SupportedCurrencies = []CurrencyInfo{
	{"USD", "$", "US Dollar"},
	{"EUR", "€", "Euro"},
	{"GBP", "£", "British Pound"},
	{"JPY", "¥", "Japanese Yen"},
	{"KRW", "₩", "South Korean Won"},
	{"SGD", "S$", "Singapore Dollar"},
	{"CNY", "¥", "Chinese Yuan"},
	{"CAD", "C$", "Canadian Dollar"},
	{"AUD", "A$", "Australian Dollar"},
	{"CHF", "Fr", "Swiss Franc"},
	{"INR", "₹", "Indian Rupee"},
}

var currencyMap = func() map[string]CurrencyInfo {
	m := make(map[string]CurrencyInfo, len(SupportedCurrencies))
	for _, c := range SupportedCurrencies {
		m[c.Code] = c
	}
	return m
}()

// ValidCurrency reports whether code is a well-formed, supported ISO 4217
// code: exactly 3 uppercase letters and present in the allowlist.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	_, ok := currencyMap[code]
	return ok
}

// CurrencySymbol returns the display symbol for a supported currency code,
// or the code itself if unknown.
func CurrencySymbol(code string) string {
	if c, ok := currencyMap[code]; ok {
		return c.Symbol
	}
	return code
}
