package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business is the company a ledger belongs to. The account ids here are the
// chart-of-accounts defaults the reconciliation widget falls back on.
type Business struct {
	ID                       uuid.UUID `gorm:"primary_key" json:"id"`
	Name                     string    `gorm:"index;size:100;not null" json:"name"`
	BaseCurrencyId           int       `gorm:"not null" json:"base_currency_id"`
	IncomeExchangeAccountId  int       `json:"income_exchange_account_id"`
	ExpenseExchangeAccountId int       `json:"expense_exchange_account_id"`
	WriteoffAccountId        int       `json:"writeoff_account_id"`
	Timezone                 string    `gorm:"size:50" json:"timezone"`
	IsActive                 *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt                time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetBusiness(tx *gorm.DB, businessId string) (*Business, error) {
	id, err := uuid.Parse(businessId)
	if err != nil {
		return nil, err
	}
	var business Business
	if err := tx.Where("id = ?", id).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}
