package news

import "strings"

// quote suffixes, longest first so USDT wins over USD.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "JPY", "CHF", "AUD", "CAD", "NZD", "BTC"}

// Currencies splits an instrument symbol into base and quote currencies.
// Stablecoin quotes are normalised to USD.
func Currencies(symbol string) (base, quote string) {
	s := strings.ToUpper(strings.NewReplacer("/", "", "_", "", "-", "").Replace(symbol))
	for _, q := range quoteSuffixes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return normaliseCurrency(s[:len(s)-len(q)]), normaliseCurrency(q)
		}
	}
	if len(s) == 6 {
		return s[:3], s[3:]
	}
	return s, ""
}

func normaliseCurrency(c string) string {
	switch c {
	case "USDT", "USDC", "BUSD":
		return "USD"
	}
	return c
}

// Affects reports whether an event in currency moves symbol.
func Affects(symbol, currency string) bool {
	base, quote := Currencies(symbol)
	return currency != "" && (currency == base || currency == quote)
}

// PipSize returns the price increment one pip represents for symbol.
func PipSize(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "JPY"):
		return 0.01
	case strings.Contains(s, "XAU"):
		return 0.1
	case strings.HasPrefix(s, "BTC"), strings.HasPrefix(s, "ETH"):
		return 1
	default:
		return 0.0001
	}
}
