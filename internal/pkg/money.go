package pkg

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places kept for currency amounts.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// IsWholeCents reports whether d needs no rounding to fit MoneyPlaces.
func IsWholeCents(d decimal.Decimal) bool {
	return d.Equal(RoundMoney(d))
}

// ToCents converts an amount to integer minor units, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(MoneyPlaces).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MoneyPlaces)
}

// Percentage returns part/total*100 truncated to places. A zero total yields zero.
func Percentage(part, total int64, places int32) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).
		Mul(hundred).
		DivRound(decimal.NewFromInt(total), places+4).
		Truncate(places)
}
