package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// NormalizeText collapses inner whitespace, strips non-printable runes and
// trims the result. Applied to every non-price field before emptiness is
// checked, so formatting artifacts never fail a rule.
func NormalizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' {
			b.WriteRune(r)
		} else if unicode.IsSpace(r) {
			b.WriteRune(' ')
		}
	}
	out := innerWhitespace.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(out)
}

// ParsePrice extracts a decimal amount from a price string. Currency
// symbols, codes and whitespace are stripped; both "1,299.00" and
// "1.299,00" styles resolve to 1299.00. A single comma followed by one or
// two digits is read as a decimal separator, any other comma as a
// thousands separator.
func ParsePrice(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ".,")
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in price %q", raw)
	}

	lastDot := strings.LastIndexByte(cleaned, '.')
	lastComma := strings.LastIndexByte(cleaned, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		digitsAfter := len(cleaned) - lastComma - 1
		if strings.Count(cleaned, ",") == 1 && digitsAfter >= 1 && digitsAfter <= 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return value, nil
}
