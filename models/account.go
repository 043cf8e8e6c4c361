package models

import (
	"time"

	"gorm.io/gorm"
)

type Account struct {
	ID           int         `gorm:"primary_key" json:"id"`
	BusinessId   string      `gorm:"index;not null" json:"business_id"`
	Name         string      `gorm:"index;size:100;not null" json:"name"`
	Code         string      `gorm:"size:100" json:"code"`
	AccountType  AccountType `gorm:"type:enum('Receivable','Payable','Liquidity','Income','Expense','Other');default:'Other';index;size:20;not null" json:"account_type"`
	CurrencyId   int         `gorm:"index" json:"currency_id"`
	Reconcilable *bool       `gorm:"not null;default:false" json:"reconcilable"`
	IsActive     *bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a Account) IsReconcilable() bool {
	return a.Reconcilable != nil && *a.Reconcilable
}

func GetAccount(tx *gorm.DB, id int) (*Account, error) {
	var account Account
	if err := tx.Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccountsByIds(tx *gorm.DB, ids []int) ([]Account, error) {
	var accounts []Account
	if len(ids) == 0 {
		return accounts, nil
	}
	err := tx.Where("id IN ?", ids).Find(&accounts).Error
	return accounts, err
}
