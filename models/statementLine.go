package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatementLine is one bank statement row. Amount is in the journal currency;
// AmountCurrency is set when the bank converted from ForeignCurrencyId.
type StatementLine struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BusinessId        string          `gorm:"index;not null" json:"business_id"`
	JournalId         int             `gorm:"index;not null" json:"journal_id"`
	Date              time.Time       `gorm:"not null;index" json:"date"`
	PaymentRef        string          `gorm:"size:255" json:"payment_ref"`
	PartnerId         int             `gorm:"index" json:"partner_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	ForeignCurrencyId int             `json:"foreign_currency_id"`
	AmountCurrency    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_currency"`
	IsReconciled      bool            `gorm:"not null;default:false;index" json:"is_reconciled"`
	MoveId            int             `gorm:"index" json:"move_id"`
	ReconciledBy      string          `gorm:"size:100" json:"reconciled_by"`
	ReconciledAt      *time.Time      `json:"reconciled_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransactionCurrencyId is the currency the money actually moved in.
func (st StatementLine) TransactionCurrencyId(journalCurrencyId int) int {
	if st.ForeignCurrencyId != 0 {
		return st.ForeignCurrencyId
	}
	return journalCurrencyId
}

// TransactionAmount is the amount in the transaction currency.
func (st StatementLine) TransactionAmount() decimal.Decimal {
	if st.ForeignCurrencyId != 0 {
		return st.AmountCurrency
	}
	return st.Amount
}

// DefaultAmlsMatchingQuery lists the open, posted lines on reconcilable accounts this line may settle.
func (st StatementLine) DefaultAmlsMatchingQuery() AmlQuery {
	return AmlQuery{
		BusinessId:              st.BusinessId,
		ParentState:             MoveStatePosted,
		ExcludeDisplayTypes:     []DisplayType{DisplayTypeLineSection, DisplayTypeLineNote},
		OnlyUnreconciled:        true,
		ReconcilableOnly:        true,
		SkipPaymentCounterparts: true,
		ExcludeStatementLineId:  st.ID,
	}
}

func GetStatementLine(tx *gorm.DB, id int) (*StatementLine, error) {
	var st StatementLine
	if err := tx.Where("id = ?", id).First(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// LockStatementLine reads the line FOR UPDATE inside the caller's transaction.
func LockStatementLine(tx *gorm.DB, id int) (*StatementLine, error) {
	var st StatementLine
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}
