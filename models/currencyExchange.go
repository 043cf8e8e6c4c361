package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrCurrencyRateMissing = errors.New("currency rate missing")

// CurrencyExchange stores how many units of the business base currency one unit of
// ForeignCurrencyId is worth from ExchangeDate on.
type CurrencyExchange struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"index;not null;index:idx_ce_lookup,priority:1" json:"business_id"`
	ForeignCurrencyId int             `gorm:"index;not null;index:idx_ce_lookup,priority:2" json:"foreign_currency_id"`
	ExchangeDate      time.Time       `gorm:"index;not null;index:idx_ce_lookup,priority:3" json:"exchange_date"`
	ExchangeRate      decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"exchange_rate"`
	Notes             string          `gorm:"size:255" json:"notes"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// RateOn returns the latest rate at or before date.
func RateOn(tx *gorm.DB, businessId string, currencyId int, date time.Time) (decimal.Decimal, error) {
	var exchange CurrencyExchange
	err := tx.Where("business_id = ? AND foreign_currency_id = ? AND exchange_date <= ? AND exchange_rate > 0",
		businessId, currencyId, date).
		Order("exchange_date DESC, id DESC").
		First(&exchange).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, fmt.Errorf("%w: currency_id=%d date=%s", ErrCurrencyRateMissing, currencyId, date.Format("2006-01-02"))
	}
	if err != nil {
		return decimal.Zero, err
	}
	return exchange.ExchangeRate, nil
}

// CrossConvert converts through the base currency; rates are base units per one unit.
func CrossConvert(amount, fromRate, toRate decimal.Decimal, to Currency) (decimal.Decimal, error) {
	if fromRate.Sign() <= 0 || toRate.Sign() <= 0 {
		return decimal.Zero, ErrCurrencyRateMissing
	}
	return to.Round(amount.Mul(fromRate).Div(toRate)), nil
}

// ConvertAmount converts amount from one currency to another at date, rounded to the target currency.
func ConvertAmount(tx *gorm.DB, business *Business, amount decimal.Decimal, from, to Currency, date time.Time) (decimal.Decimal, error) {
	if from.ID == to.ID {
		return to.Round(amount), nil
	}
	rateOf := func(c Currency) (decimal.Decimal, error) {
		if c.ID == business.BaseCurrencyId {
			return decimal.NewFromInt(1), nil
		}
		return RateOn(tx, business.ID.String(), c.ID, date)
	}
	fromRate, err := rateOf(from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := rateOf(to)
	if err != nil {
		return decimal.Zero, err
	}
	return CrossConvert(amount, fromRate, toRate, to)
}
