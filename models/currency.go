package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Currency struct {
	ID            int           `gorm:"primary_key" json:"id"`
	BusinessId    string        `gorm:"index;not null" json:"business_id"`
	Symbol        string        `gorm:"index;size:3;not null" json:"symbol"`
	Name          string        `gorm:"index;size:100;not null" json:"name"`
	DecimalPlaces DecimalPlaces `gorm:"type:enum('0','2','3');default:'2';size:1;not null" json:"decimal_places"`
	// Rounding is the smallest amount step, e.g. 0.05 for cash rounding. Zero means one unit of DecimalPlaces.
	Rounding  decimal.Decimal `gorm:"type:decimal(12,6);default:0" json:"rounding"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Places is the number of decimals of the smallest representable unit.
func (c Currency) Places() int32 {
	switch c.DecimalPlaces {
	case DecimalPlacesZero:
		return 0
	case DecimalPlacesThree:
		return 3
	default:
		return 2
	}
}

// Round rounds half away from zero to the nearest multiple of Rounding, then to Places.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	if c.Rounding.IsPositive() {
		amount = amount.Div(c.Rounding).Round(0).Mul(c.Rounding)
	}
	return amount.Round(c.Places())
}

func (c Currency) IsZero(amount decimal.Decimal) bool {
	return c.Round(amount).IsZero()
}

// CompareAmounts compares after rounding both sides: -1, 0 or 1.
func (c Currency) CompareAmounts(a, b decimal.Decimal) int {
	return c.Round(a).Cmp(c.Round(b))
}

func GetCurrency(tx *gorm.DB, id int) (*Currency, error) {
	var currency Currency
	if err := tx.Where("id = ?", id).First(&currency).Error; err != nil {
		return nil, err
	}
	return &currency, nil
}
