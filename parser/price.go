package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var priceNumberRe = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

// ParsePrice normalizes a price string. The raw text is always
// retained; the numeric value strips currency symbols and thousands
// separators. Text with no parseable number yields a nil value, never
// an error, so "Out of stock" placeholders keep the record intact.
func ParsePrice(text string) (string, *float64) {
	raw := collapseWhitespace(text)
	if raw == "" {
		return "", nil
	}

	match := priceNumberRe.FindString(raw)
	if match == "" {
		return raw, nil
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return raw, nil
	}
	return raw, &value
}
