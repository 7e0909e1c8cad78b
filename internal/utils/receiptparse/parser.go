// Package receiptparse derives structured fields from raw receipt text and
// key-value pairs produced by document extraction. Parsing is pure pattern
// matching: no I/O, no side effects, and no errors. A field that cannot be
// derived stays nil so downstream code can ask the human instead.
package receiptparse

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

const currency = `(?:R\$|US\$|\$|€|£)`

// amountPatterns are tried in order; the first match wins. Receipts write the
// payable value many ways, so the specific "total:" shape outranks generic
// trailing prices.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btotal\s*:?\s*` + currency + `?\s*([0-9][0-9.,]*)`),
	regexp.MustCompile(`(?i)\bamount\s*:?\s*` + currency + `?\s*([0-9][0-9.,]*)`),
	regexp.MustCompile(`(?i)` + currency + `?\s*([0-9][0-9.,]*)\s+total\b`),
	regexp.MustCompile(`(?m)` + currency + `\s*([0-9][0-9.,]*)\s*$`),
}

var totalPattern = regexp.MustCompile(`(?i)\btotal\s*:?\s*` + currency + `?\s*([0-9][0-9.,]*)`)

// datePatterns are tried in order. Day-first comes before year-first because
// the receipts this system sees write dates as 15/01/2025; an ambiguous
// string like 03/04/2025 therefore parses as April 3rd. This ordering is a
// known limitation, not a bug to fix.
var datePatterns = []struct {
	re      *regexp.Regexp
	layouts []string
}{
	{
		re:      regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4}\b`),
		layouts: []string{"2/1/2006", "2-1-2006", "2.1.2006"},
	},
	{
		re:      regexp.MustCompile(`\b\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}\b`),
		layouts: []string{"2006/1/2", "2006-1-2", "2006.1.2"},
	},
	{
		re:      regexp.MustCompile(`\b\d{1,2} (?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec) \d{4}\b`),
		layouts: []string{"2 January 2006", "2 Jan 2006"},
	},
}

// itemPattern matches receipt line items of the form
// "Prato Feito    1    R$ 25,90": a name, an optional quantity, and a priced
// column separated by runs of whitespace.
var itemPattern = regexp.MustCompile(`^(\S.*?\S)\s{2,}(?:\d+\s+)?` + currency + `\s*([0-9][0-9.,]*)\s*$`)

// Parse turns extraction output into structured receipt fields. Key-value
// pairs override pattern-matched values because keyed extraction is more
// trustworthy than free-text heuristics.
func Parse(fullText string, keyValuePairs map[string]string) domain.ParsedReceipt {
	parsed := domain.ParsedReceipt{
		Vendor: findVendor(fullText),
		Amount: findAmount(fullText),
		Total:  findTotal(fullText),
		Date:   findDate(fullText),
		Items:  findItems(fullText),
	}

	applyKeyValueOverrides(&parsed, keyValuePairs)

	// A receipt total is the claimable value when no separate amount showed up.
	if parsed.Amount == nil && parsed.Total != nil {
		v := *parsed.Total
		parsed.Amount = &v
	}

	return parsed
}

// findVendor returns the first line carrying a letter or digit. Receipts
// often open with separator art ("====="), which is skipped.
func findVendor(text string) *string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.ContainsFunc(trimmed, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		return &trimmed
	}
	return nil
}

func findAmount(text string) *decimal.Decimal {
	for _, re := range amountPatterns {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			if d, ok := parseMoney(match[1]); ok {
				return &d
			}
		}
	}
	return nil
}

func findTotal(text string) *decimal.Decimal {
	for _, match := range totalPattern.FindAllStringSubmatch(text, -1) {
		if d, ok := parseMoney(match[1]); ok {
			return &d
		}
	}
	return nil
}

func findDate(text string) *time.Time {
	for _, p := range datePatterns {
		for _, candidate := range p.re.FindAllString(text, -1) {
			for _, layout := range p.layouts {
				if t, err := time.Parse(layout, candidate); err == nil {
					return &t
				}
			}
		}
	}
	return nil
}

func findItems(text string) []domain.ReceiptItem {
	var items []domain.ReceiptItem
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.Contains(strings.ToLower(trimmed), "total") {
			continue
		}
		match := itemPattern.FindStringSubmatch(trimmed)
		if match == nil {
			continue
		}
		price, ok := parseMoney(match[2])
		if !ok {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSpace(match[1]), ":")
		if name == "" {
			continue
		}
		items = append(items, domain.ReceiptItem{Name: name, Price: price})
	}
	return items
}

// applyKeyValueOverrides replaces pattern-matched fields with keyed values
// when a key names them. A value that fails to parse leaves the pattern
// result in place.
func applyKeyValueOverrides(parsed *domain.ParsedReceipt, kv map[string]string) {
	if len(kv) == 0 {
		return
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys) // map order is random; overrides must be deterministic

	var totalDone, amountDone, dateDone bool
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		value := kv[key]

		if !totalDone && strings.Contains(lowerKey, "total") {
			if d, ok := parseMoney(stripCurrency(value)); ok {
				v := d
				parsed.Total = &v
				totalDone = true
			}
		}
		if !amountDone && strings.Contains(lowerKey, "amount") {
			if d, ok := parseMoney(stripCurrency(value)); ok {
				v := d
				parsed.Amount = &v
				amountDone = true
			}
		}
		if !dateDone && (strings.Contains(lowerKey, "date") || strings.Contains(lowerKey, "time")) {
			if t := findDate(value); t != nil {
				parsed.Date = t
				dateDone = true
			}
		}
	}
}

var currencyPrefix = regexp.MustCompile(`^\s*` + currency + `\s*`)

func stripCurrency(s string) string {
	return currencyPrefix.ReplaceAllString(strings.TrimSpace(s), "")
}

// parseMoney normalizes a matched money token to a decimal. Receipts in
// pt-BR locales write 1.234,56, so when a comma is present it is taken as
// the decimal separator and periods as thousands grouping.
func parseMoney(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	s = strings.Trim(s, ".")
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
