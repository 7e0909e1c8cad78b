package utils

import "github.com/shopspring/decimal"

// minorUnits lists ISO 4217 currencies whose minor unit differs from the
// default of 2. Amounts in these currencies would otherwise be rendered with
// the wrong number of decimal places.
var minorUnits = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

// FormatAmount formats an amount with the minor-unit precision of its currency.
// Example: amount 12.3456 with USD returns "12.35"
// Example: amount 12.3456 with JPY returns "12"
func FormatAmount(amount decimal.Decimal, currencyCode string) string {
	precision, ok := minorUnits[currencyCode]
	if !ok {
		precision = 2
	}
	return amount.StringFixed(precision)
}
