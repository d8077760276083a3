// Package display formats gateway-reported values for user-facing output.
package display

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titler = cases.Title(language.English)

// BrandTitle renders a gateway card brand for receipts, e.g. "visa" ->
// "Visa". Acronym brands keep their casing.
func BrandTitle(brand string) string {
	switch strings.ToLower(strings.TrimSpace(brand)) {
	case "":
		return ""
	case "jcb":
		return "JCB"
	case "unionpay":
		return "UnionPay"
	default:
		return titler.String(strings.ToLower(strings.TrimSpace(brand)))
	}
}

// CardSummary is the short form shown on receipts, e.g. "Visa ending 4242".
func CardSummary(brand, last4 string) string {
	b := BrandTitle(brand)
	if b == "" || last4 == "" {
		return ""
	}
	return b + " ending " + last4
}
