package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currencies the gateway charges without a fractional minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

func MinorUnitScale(currency string) int64 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 1
	}
	return 100
}

// ToMinorUnits converts a major-unit amount, rounding half away from zero.
func ToMinorUnits(amount float64, currency string) int64 {
	scale := decimal.NewFromInt(MinorUnitScale(currency))
	return decimal.NewFromFloat(amount).Mul(scale).Round(0).IntPart()
}

func ToMajorUnits(minor int64, currency string) float64 {
	scale := decimal.NewFromInt(MinorUnitScale(currency))
	return decimal.NewFromInt(minor).Div(scale).InexactFloat64()
}
