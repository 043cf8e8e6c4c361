package models

import (
	"time"

	"gorm.io/gorm"
)

// Journal is a bank or cash book. CurrencyId 0 means the journal books in the company currency.
type Journal struct {
	ID                           int         `gorm:"primary_key" json:"id"`
	BusinessId                   string      `gorm:"index;not null" json:"business_id"`
	Name                         string      `gorm:"size:100;not null" json:"name"`
	Code                         string      `gorm:"size:10;not null" json:"code"`
	Type                         JournalType `gorm:"size:20;not null;default:'bank'" json:"type"`
	CurrencyId                   int         `gorm:"index" json:"currency_id"`
	DefaultAccountId             int         `gorm:"not null" json:"default_account_id"`
	SuspenseAccountId            int         `json:"suspense_account_id"`
	InboundOutstandingAccountId  int         `json:"inbound_outstanding_account_id"`
	OutboundOutstandingAccountId int         `json:"outbound_outstanding_account_id"`
	CreatedAt                    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectiveCurrencyId resolves the company currency for journals without their own.
func (j Journal) EffectiveCurrencyId(baseCurrencyId int) int {
	if j.CurrencyId == 0 {
		return baseCurrencyId
	}
	return j.CurrencyId
}

// OutstandingAccountId is where payments of the given direction park until matched with the bank.
func (j Journal) OutstandingAccountId(paymentType PaymentType) int {
	if paymentType == PaymentTypeOutbound {
		return j.OutboundOutstandingAccountId
	}
	return j.InboundOutstandingAccountId
}

func GetJournal(tx *gorm.DB, id int) (*Journal, error) {
	var journal Journal
	if err := tx.Where("id = ?", id).First(&journal).Error; err != nil {
		return nil, err
	}
	return &journal, nil
}
