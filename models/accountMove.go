package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountMove is a journal entry. Posted moves are never deleted.
type AccountMove struct {
	ID              int               `gorm:"primary_key" json:"id"`
	BusinessId      string            `gorm:"index;not null;index:idx_am_biz_date,priority:1" json:"business_id"`
	JournalId       int               `gorm:"index;not null" json:"journal_id"`
	Name            string            `gorm:"size:255" json:"name"`
	Ref             string            `gorm:"size:255" json:"ref"`
	Date            time.Time         `gorm:"not null;index:idx_am_biz_date,priority:2" json:"date"`
	State           MoveState         `gorm:"size:10;not null;default:'draft';index" json:"state"`
	PartnerId       int               `gorm:"index" json:"partner_id"`
	CurrencyId      int               `gorm:"not null" json:"currency_id"`
	PaymentId       int               `gorm:"index" json:"payment_id"`
	StatementLineId int               `gorm:"index" json:"statement_line_id"`
	Lines           []AccountMoveLine `gorm:"foreignKey:MoveId" json:"lines"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccountMoveLine is one line of a journal entry, the unit the reconciliation widget matches.
//
// Balance is in company currency, AmountCurrency in CurrencyId; both signed (debit > 0).
// The residual pair tracks what is still open on reconcilable accounts.
type AccountMoveLine struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	BusinessId             string          `gorm:"index;not null;index:idx_aml_open,priority:1" json:"business_id"`
	MoveId                 int             `gorm:"index;not null" json:"move_id"`
	JournalId              int             `gorm:"index;not null" json:"journal_id"`
	AccountId              int             `gorm:"index;not null;index:idx_aml_open,priority:2" json:"account_id"`
	PartnerId              int             `gorm:"index" json:"partner_id"`
	CurrencyId             int             `gorm:"not null" json:"currency_id"`
	Name                   string          `gorm:"size:255" json:"name"`
	Date                   time.Time       `gorm:"not null" json:"date"`
	DisplayType            DisplayType     `gorm:"size:20;not null;default:'product'" json:"display_type"`
	ParentState            MoveState       `gorm:"size:10;not null;default:'draft'" json:"parent_state"`
	AmountCurrency         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_currency"`
	Balance                decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance"`
	AmountResidual         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_residual"`
	AmountResidualCurrency decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_residual_currency"`
	Reconciled             bool            `gorm:"not null;default:false;index:idx_aml_open,priority:3" json:"reconciled"`
	PaymentId              int             `gorm:"index" json:"payment_id"`
	StatementLineId        int             `gorm:"index" json:"statement_line_id"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Filled by SearchAmls joins, never written.
	AccountType         AccountType       `gorm:"->;-:migration" json:"account_type,omitempty"`
	AccountReconcilable bool              `gorm:"->;-:migration" json:"account_reconcilable,omitempty"`
	PaymentState        PaymentState      `gorm:"->;-:migration" json:"payment_state,omitempty"`
	BatchPaymentId      int               `gorm:"->;-:migration" json:"batch_payment_id,omitempty"`
	BatchPaymentState   BatchPaymentState `gorm:"->;-:migration" json:"batch_payment_state,omitempty"`
	BatchJournalId      int               `gorm:"->;-:migration" json:"batch_journal_id,omitempty"`
}

// OpenResidual sets the residual pair for a new line; lines on non-reconcilable accounts stay at zero.
func (l *AccountMoveLine) OpenResidual(reconcilable bool) {
	if !reconcilable {
		l.AmountResidual = decimal.Zero
		l.AmountResidualCurrency = decimal.Zero
		return
	}
	l.AmountResidual = l.Balance
	l.AmountResidualCurrency = l.AmountCurrency
}

// Ledger guardrails: posted lines only move their residual and reconciled flag; nothing is deleted.

var amlMutableFields = map[string]bool{
	"AmountResidual":         true,
	"AmountResidualCurrency": true,
	"Reconciled":             true,
	"ParentState":            true,
	"UpdatedAt":              true,
}

func (l *AccountMoveLine) BeforeUpdate(tx *gorm.DB) error {
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !amlMutableFields[f.Name] {
			return errors.New("immutable ledger: only residual fields may be updated on account_move_lines")
		}
	}
	return nil
}

func (l *AccountMoveLine) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: account_move_lines cannot be deleted")
}

func (m *AccountMove) BeforeDelete(tx *gorm.DB) error {
	if m.State == MoveStatePosted {
		return errors.New("immutable ledger: posted account_moves cannot be deleted")
	}
	return nil
}

func GetAccountMove(tx *gorm.DB, id int) (*AccountMove, error) {
	var move AccountMove
	if err := tx.Where("id = ?", id).First(&move).Error; err != nil {
		return nil, err
	}
	return &move, nil
}

// GetAmlsByIds returns lines ordered by id with the same joined fields as SearchAmls.
func GetAmlsByIds(tx *gorm.DB, businessId string, ids []int) ([]AccountMoveLine, error) {
	ids = append([]int{}, ids...)
	return SearchAmls(tx, AmlQuery{BusinessId: businessId, Ids: ids})
}

// SearchAmls evaluates q against the store, ordered by id ascending.
func SearchAmls(tx *gorm.DB, q AmlQuery) ([]AccountMoveLine, error) {
	var lines []AccountMoveLine
	if q.IsEmpty() {
		return lines, nil
	}
	err := amlSearch(tx, q).Find(&lines).Error
	return lines, err
}

// amlSearch is the SearchAmls statement: the joined fields Matches reads, q's filters, id order.
func amlSearch(tx *gorm.DB, q AmlQuery) *gorm.DB {
	db := tx.Model(&AccountMoveLine{}).
		Select(`account_move_lines.*,
			accounts.account_type AS account_type,
			accounts.reconcilable AS account_reconcilable,
			COALESCE(payments.state, '') AS payment_state,
			COALESCE(payments.batch_payment_id, 0) AS batch_payment_id,
			COALESCE(batch_payments.state, '') AS batch_payment_state,
			COALESCE(batch_payments.journal_id, 0) AS batch_journal_id`).
		Joins("JOIN accounts ON accounts.id = account_move_lines.account_id").
		Joins("LEFT JOIN payments ON payments.id = account_move_lines.payment_id").
		Joins("LEFT JOIN batch_payments ON batch_payments.id = payments.batch_payment_id")
	return q.Apply(db).Order("account_move_lines.id ASC")
}
