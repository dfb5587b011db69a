package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency is an ISO 4217 currency code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CNY Currency = "CNY"
	JPY Currency = "JPY"
)

// DefaultCurrency is used when a product snapshot carries none
const DefaultCurrency = USD

// ParseCurrency validates a currency code against the ISO 4217 table
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency, nil
	}
	if _, err := currency.ParseISO(code); err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}
	return Currency(code), nil
}

// Money is an immutable monetary amount
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, cur Currency) (Money, error) {
	if cur == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{amount: amount, currency: cur}, nil
}

// NewMoneyFromString parses amount as a decimal string
func NewMoneyFromString(amount string, cur Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d, cur)
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() Currency {
	return m.currency
}

// MultiplyByInt returns m * factor, e.g. unit price times quantity
func (m Money) MultiplyByInt(factor int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(factor)), currency: m.currency}
}

// Equals compares amount and currency
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String renders "12.50 USD"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

// Format renders the amount for humans in the given language, using the
// currency symbol when the locale knows one ("$ 12.50", "€ 9.99").
func (m Money) Format(tag language.Tag) string {
	unit, err := currency.ParseISO(string(m.currency))
	if err != nil {
		return m.String()
	}
	p := message.NewPrinter(tag)
	return p.Sprint(currency.Symbol(unit.Amount(m.amount.Round(2).InexactFloat64())))
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON renders the amount as a fixed two-decimal string
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.StringFixed(2), Currency: m.currency})
}

// UnmarshalJSON parses {"amount": "...", "currency": "..."}
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoneyFromString(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
