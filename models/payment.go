package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is a customer receipt or supplier payment. A payment without MoveId has not
// produced a journal entry yet; it is settled directly against invoice term lines.
type Payment struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	BusinessId           string          `gorm:"index;not null" json:"business_id"`
	Name                 string          `gorm:"size:255" json:"name"`
	PaymentType          PaymentType     `gorm:"size:10;not null" json:"payment_type"`
	PartnerId            int             `gorm:"index" json:"partner_id"`
	JournalId            int             `gorm:"index;not null" json:"journal_id"`
	CurrencyId           int             `gorm:"not null" json:"currency_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	AmountSigned         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_signed"`
	AmountCompanySigned  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_company_signed"`
	Date                 time.Time       `gorm:"not null" json:"date"`
	State                PaymentState    `gorm:"size:20;not null;default:'draft';index" json:"state"`
	MoveId               int             `gorm:"index" json:"move_id"`
	BatchPaymentId       int             `gorm:"index" json:"batch_payment_id"`
	OutstandingAccountId int             `json:"outstanding_account_id"`
	Memo                 string          `gorm:"size:255" json:"memo"`
	Invoices             []AccountMove   `gorm:"many2many:payment_invoices;" json:"invoices,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SeekForLines splits the lines of the payment's own move into liquidity, counterpart and write-off lines.
func (p Payment) SeekForLines(moveLines []AccountMoveLine) (liquidity, counterparts, writeoffs []AccountMoveLine) {
	for _, l := range moveLines {
		switch {
		case l.AccountId == p.OutstandingAccountId || l.DisplayType == DisplayTypeLiquidity:
			liquidity = append(liquidity, l)
		case l.AccountType == AccountTypeReceivable || l.AccountType == AccountTypePayable ||
			l.DisplayType == DisplayTypeCounterpart:
			counterparts = append(counterparts, l)
		default:
			writeoffs = append(writeoffs, l)
		}
	}
	return
}

// Sign is +1 for money in and -1 for money out.
func (p Payment) Sign() decimal.Decimal {
	if p.PaymentType == PaymentTypeOutbound {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func GetPayment(tx *gorm.DB, id int) (*Payment, error) {
	var payment Payment
	if err := tx.Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentMoveLines loads the payment's own move lines with account data joined.
func GetPaymentMoveLines(tx *gorm.DB, payment Payment) ([]AccountMoveLine, error) {
	if payment.MoveId == 0 {
		return nil, nil
	}
	var lines []AccountMoveLine
	err := tx.Model(&AccountMoveLine{}).
		Select("account_move_lines.*, accounts.account_type AS account_type, accounts.reconcilable AS account_reconcilable").
		Joins("JOIN accounts ON accounts.id = account_move_lines.account_id").
		Where("account_move_lines.move_id = ?", payment.MoveId).
		Order("account_move_lines.id ASC").
		Find(&lines).Error
	return lines, err
}

// GetPaymentTermLines returns the open term lines of the invoices the payment pays, oldest first.
func GetPaymentTermLines(tx *gorm.DB, payment Payment) ([]AccountMoveLine, error) {
	var lines []AccountMoveLine
	err := tx.Model(&AccountMoveLine{}).
		Joins("JOIN payment_invoices ON payment_invoices.account_move_id = account_move_lines.move_id").
		Where("payment_invoices.payment_id = ?", payment.ID).
		Where("account_move_lines.display_type = ?", DisplayTypePaymentTerm).
		Where("account_move_lines.parent_state = ?", MoveStatePosted).
		Where("account_move_lines.reconciled = ?", false).
		Order("account_move_lines.date ASC, account_move_lines.id ASC").
		Find(&lines).Error
	return lines, err
}

// ActionValidatePayment moves an in-process payment without journal entry to paid.
func ActionValidatePayment(tx *gorm.DB, payment *Payment) error {
	if payment.State != PaymentStateInProcess {
		return fmt.Errorf("payment %d cannot be validated from state %s", payment.ID, payment.State)
	}
	if payment.MoveId != 0 {
		return errors.New("payment already has a journal entry")
	}
	payment.State = PaymentStatePaid
	return tx.Model(&Payment{}).Where("id = ?", payment.ID).Update("state", PaymentStatePaid).Error
}
