package utils

import (
	"strconv"
	"strings"
)

// ParseFloat converts string to float64 with default value
func ParseFloat(value string, defaultValue float64) float64 {
	if value == "" {
		return defaultValue
	}

	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}

	return result
}

// NormalizeCurrency upper-cases an ISO-4217 code and falls back to def when empty.
func NormalizeCurrency(currency, def string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return strings.ToUpper(def)
	}
	return currency
}
