package models

import (
	"time"

	"gorm.io/gorm"
)

type Partner struct {
	ID                  int       `gorm:"primary_key" json:"id"`
	BusinessId          string    `gorm:"index;not null" json:"business_id"`
	Name                string    `gorm:"index;size:100;not null" json:"name"`
	ReceivableAccountId int       `json:"receivable_account_id"`
	PayableAccountId    int       `json:"payable_account_id"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CounterpartAccountId is the receivable for customer money and the payable for supplier money.
func (p Partner) CounterpartAccountId(paymentType PaymentType) int {
	if paymentType == PaymentTypeOutbound {
		return p.PayableAccountId
	}
	return p.ReceivableAccountId
}

func GetPartner(tx *gorm.DB, id int) (*Partner, error) {
	var partner Partner
	if err := tx.Where("id = ?", id).First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}
