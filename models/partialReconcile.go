package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAlreadyReconciled is returned when a line to match has nothing left open,
// usually because another session settled it first.
var ErrAlreadyReconciled = errors.New("move line already reconciled")

// PartialReconcile links a debit and a credit line for Amount of company currency.
type PartialReconcile struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	BusinessId           string          `gorm:"index;not null" json:"business_id"`
	DebitMoveLineId      int             `gorm:"index;not null" json:"debit_move_line_id"`
	CreditMoveLineId     int             `gorm:"index;not null" json:"credit_move_line_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	DebitAmountCurrency  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"debit_amount_currency"`
	CreditAmountCurrency decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit_amount_currency"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// share returns the part of residualCurrency matching amount out of residual, exact when fully consumed.
func share(residualCurrency, residual, amount decimal.Decimal) decimal.Decimal {
	if amount.Equal(residual) || residual.IsZero() {
		return residualCurrency
	}
	return residualCurrency.Mul(amount).Div(residual).Round(4)
}

// MatchResiduals settles as much as possible between a debit and a credit line, updating both in place.
func MatchResiduals(debit, credit *AccountMoveLine) (*PartialReconcile, error) {
	if debit.AmountResidual.Sign() <= 0 || debit.Reconciled {
		return nil, fmt.Errorf("%w: line %d", ErrAlreadyReconciled, debit.ID)
	}
	if credit.AmountResidual.Sign() >= 0 || credit.Reconciled {
		return nil, fmt.Errorf("%w: line %d", ErrAlreadyReconciled, credit.ID)
	}
	amount := decimal.Min(debit.AmountResidual, credit.AmountResidual.Neg())

	debitCur := share(debit.AmountResidualCurrency, debit.AmountResidual, amount)
	creditCur := share(credit.AmountResidualCurrency, credit.AmountResidual, amount.Neg())

	debit.AmountResidual = debit.AmountResidual.Sub(amount)
	debit.AmountResidualCurrency = debit.AmountResidualCurrency.Sub(debitCur)
	credit.AmountResidual = credit.AmountResidual.Add(amount)
	credit.AmountResidualCurrency = credit.AmountResidualCurrency.Sub(creditCur)
	debit.Reconciled = debit.AmountResidual.IsZero()
	credit.Reconciled = credit.AmountResidual.IsZero()

	return &PartialReconcile{
		BusinessId:           debit.BusinessId,
		DebitMoveLineId:      debit.ID,
		CreditMoveLineId:     credit.ID,
		Amount:               amount,
		DebitAmountCurrency:  debitCur,
		CreditAmountCurrency: creditCur.Neg(),
	}, nil
}

// ReconcileLines matches lineId against each of amlIds in order, under row locks.
// Lines already settled by someone else fail with ErrAlreadyReconciled.
func ReconcileLines(tx *gorm.DB, lineId int, amlIds []int) ([]PartialReconcile, error) {
	ids := append([]int{lineId}, amlIds...)
	var locked []AccountMoveLine
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).Order("id ASC").Find(&locked).Error; err != nil {
		return nil, err
	}
	byId := make(map[int]*AccountMoveLine, len(locked))
	for i := range locked {
		byId[locked[i].ID] = &locked[i]
	}
	line, ok := byId[lineId]
	if !ok {
		return nil, fmt.Errorf("move line %d not found", lineId)
	}

	var partials []PartialReconcile
	touched := map[int]bool{}
	for _, id := range amlIds {
		other, ok := byId[id]
		if !ok {
			return nil, fmt.Errorf("move line %d not found", id)
		}
		if other.Reconciled {
			return nil, fmt.Errorf("%w: line %d", ErrAlreadyReconciled, other.ID)
		}
		if line.Reconciled {
			break
		}
		debit, credit := line, other
		if line.AmountResidual.Sign() < 0 {
			debit, credit = other, line
		}
		partial, err := MatchResiduals(debit, credit)
		if err != nil {
			return nil, err
		}
		partials = append(partials, *partial)
		touched[line.ID], touched[other.ID] = true, true
	}

	for id := range touched {
		l := byId[id]
		if err := tx.Model(l).Updates(map[string]interface{}{
			"amount_residual":          l.AmountResidual,
			"amount_residual_currency": l.AmountResidualCurrency,
			"reconciled":               l.Reconciled,
		}).Error; err != nil {
			return nil, err
		}
	}
	if len(partials) > 0 {
		if err := tx.Create(&partials).Error; err != nil {
			return nil, err
		}
	}
	return partials, nil
}
