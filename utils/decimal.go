package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal accepts user-formatted amounts: "20,000", "USD 1,234.50", "EUR -20,000".
// Everything except digits, '.' and a leading '-' is dropped.
func ParseDecimal(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		// currency codes or symbols before the sign
		s = strings.TrimLeftFunc(s, func(r rune) bool {
			return r != '-' && (r < '0' || r > '9') && r != '.'
		})
		neg := false
		if strings.HasPrefix(s, "-") {
			neg = true
			s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
		}
		var b strings.Builder
		b.Grow(len(s) + 1)
		for _, r := range s {
			if (r >= '0' && r <= '9') || r == '.' {
				b.WriteRune(r)
			}
		}
		clean := b.String()
		if clean == "" {
			return decimal.Zero, fmt.Errorf("invalid value")
		}
		if neg {
			clean = "-" + clean
		}
		return decimal.NewFromString(clean)
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("invalid value")
	}
}
