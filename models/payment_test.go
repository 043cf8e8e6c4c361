package models

import "testing"

func TestSeekForLinesSplitsPaymentMove(t *testing.T) {
	pay := Payment{OutstandingAccountId: 50}
	lines := []AccountMoveLine{
		{ID: 1, AccountId: 50},
		{ID: 2, AccountId: 60, AccountType: AccountTypeReceivable},
		{ID: 3, AccountId: 70, AccountType: AccountTypeExpense},
	}
	liquidity, counterparts, writeoffs := pay.SeekForLines(lines)
	if len(liquidity) != 1 || liquidity[0].ID != 1 {
		t.Fatalf("unexpected liquidity: %+v", liquidity)
	}
	if len(counterparts) != 1 || counterparts[0].ID != 2 {
		t.Fatalf("unexpected counterparts: %+v", counterparts)
	}
	if len(writeoffs) != 1 || writeoffs[0].ID != 3 {
		t.Fatalf("unexpected writeoffs: %+v", writeoffs)
	}
}

func TestBatchValidPaymentsFiltersAndSorts(t *testing.T) {
	batch := BatchPayment{Payments: []Payment{
		{ID: 9, State: PaymentStateInProcess},
		{ID: 4, State: PaymentStateCanceled},
		{ID: 2, State: PaymentStateInProcess},
		{ID: 5, State: PaymentStateRejected},
	}}
	valid := batch.ValidPayments()
	if len(valid) != 2 || valid[0].ID != 2 || valid[1].ID != 9 {
		t.Fatalf("unexpected valid payments: %+v", valid)
	}
}
