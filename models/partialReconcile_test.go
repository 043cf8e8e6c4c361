package models

import (
	"errors"
	"testing"
)

func TestMatchResidualsFullMatch(t *testing.T) {
	debit := &AccountMoveLine{ID: 1, AmountResidual: dec("600"), AmountResidualCurrency: dec("600")}
	credit := &AccountMoveLine{ID: 2, AmountResidual: dec("-600"), AmountResidualCurrency: dec("-600")}

	partial, err := MatchResiduals(debit, credit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !partial.Amount.Equal(dec("600")) {
		t.Fatalf("expected 600 matched, got %s", partial.Amount)
	}
	if !debit.Reconciled || !credit.Reconciled {
		t.Fatalf("both lines should be reconciled")
	}
	if !debit.AmountResidualCurrency.IsZero() || !credit.AmountResidualCurrency.IsZero() {
		t.Fatalf("currency residuals should be zero, got %s / %s", debit.AmountResidualCurrency, credit.AmountResidualCurrency)
	}
}

func TestMatchResidualsPartialKeepsRemainderOpen(t *testing.T) {
	// 1000 USD receivable booked at 1000 EUR, paid 400 EUR worth.
	debit := &AccountMoveLine{ID: 1, AmountResidual: dec("1000"), AmountResidualCurrency: dec("1000")}
	credit := &AccountMoveLine{ID: 2, AmountResidual: dec("-400"), AmountResidualCurrency: dec("-400")}

	partial, err := MatchResiduals(debit, credit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !partial.Amount.Equal(dec("400")) || !partial.DebitAmountCurrency.Equal(dec("400")) {
		t.Fatalf("unexpected partial: %+v", partial)
	}
	if debit.Reconciled || !credit.Reconciled {
		t.Fatalf("debit must stay open, credit must close")
	}
	if !debit.AmountResidual.Equal(dec("600")) {
		t.Fatalf("expected 600 left, got %s", debit.AmountResidual)
	}
}

func TestMatchResidualsRejectsSettledLines(t *testing.T) {
	debit := &AccountMoveLine{ID: 1, AmountResidual: dec("0"), Reconciled: true}
	credit := &AccountMoveLine{ID: 2, AmountResidual: dec("-10")}
	if _, err := MatchResiduals(debit, credit); !errors.Is(err, ErrAlreadyReconciled) {
		t.Fatalf("expected ErrAlreadyReconciled, got %v", err)
	}
}
