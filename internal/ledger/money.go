package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PricePlaces is the number of decimal places prices and amounts carry (paisa)
const PricePlaces = 2

// RoundPrice rounds a price to PricePlaces, the precision the gateway and the
// payment_attempts table use
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(PricePlaces)
}

// ParsePrice parses a price sent either as a JSON number or as a numeric string
// and rounds it to PricePlaces. It is the only place untyped price input is
// turned into a decimal.
func ParsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	price, err := parseDecimal(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative price %s", ErrInvalidPrice, price)
	}
	return RoundPrice(price), nil
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, errors.New("empty value")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, err
		}
	}

	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", text)
	}
	return d, nil
}

// coerceDecimal treats anything that is not a valid non-negative number as zero
func coerceDecimal(raw json.RawMessage) decimal.Decimal {
	price, err := ParsePrice(raw)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// coerceQuantity truncates fractional quantities, maps invalid values to zero
// and clamps to MaxLineQuantity
func coerceQuantity(raw json.RawMessage) int {
	qty, err := parseDecimal(raw)
	if err != nil || qty.IsNegative() {
		return 0
	}
	if qty.GreaterThan(decimal.NewFromInt(MaxLineQuantity)) {
		return MaxLineQuantity
	}
	return int(qty.IntPart())
}
