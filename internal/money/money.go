// Package money provides the fixed-precision primitives used for all
// currency arithmetic: quantization, the negligible-amount threshold, and
// the supported-currency table.
//
// All amounts are shopspring decimals. Currency amounts carry 2 fraction
// digits, exchange rates 6. Quantize rounds half away from zero; split
// remainder distribution depends on this rounding mode, so it must not
// change without revisiting the calculator tests.
package money

import "github.com/shopspring/decimal"

const (
	// AmountPlaces is the number of fraction digits for currency amounts.
	AmountPlaces = 2
	// RatePlaces is the number of fraction digits for exchange rates.
	RatePlaces = 6
)

// Epsilon is the negligible-amount threshold. Debts compared against zero
// anywhere in the ledger use this value: anything below 0.01 is treated as
// zero and must not be retained as a row.
var Epsilon = decimal.New(1, -AmountPlaces)

// Quantize rounds an amount to 2 decimal places, half away from zero.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// QuantizeRate rounds an exchange rate to 6 decimal places.
func QuantizeRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RatePlaces)
}

// IsNegligible reports whether an amount is below the 0.01 threshold in
// absolute value.
func IsNegligible(d decimal.Decimal) bool {
	return d.Abs().LessThan(Epsilon)
}
