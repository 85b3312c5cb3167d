package domain

import "github.com/shopspring/decimal"

// Presentation scales.
const (
	MoneyScale = 2
	RatioScale = 4
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.New(5, -1)
)

// RoundHalfUp rounds d to places, sending exact halves toward positive
// infinity: 0.125 becomes 0.13 and -0.125 becomes -0.12.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// FormatFixed renders d with exactly places digits, rounding half up.
func FormatFixed(d decimal.Decimal, places int32) string {
	return RoundHalfUp(d, places).StringFixed(places)
}

// RoundMoney rounds half up to 2 places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, MoneyScale)
}

// RoundRatio rounds half up to 4 places.
func RoundRatio(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, RatioScale)
}

// PercentOf returns part / whole * 100, or zero when whole is zero.
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
