package models

import "testing"

func batchLiquidityLine() AccountMoveLine {
	return AccountMoveLine{
		ID:                  10,
		BusinessId:          "biz",
		AccountId:           5,
		CurrencyId:          1,
		DisplayType:         DisplayTypeLiquidity,
		ParentState:         MoveStatePosted,
		PaymentId:           3,
		AccountType:         AccountTypeOther,
		AccountReconcilable: true,
		PaymentState:        PaymentStateInProcess,
		BatchPaymentId:      7,
		BatchPaymentState:   BatchPaymentStateSent,
		BatchJournalId:      2,
	}
}

func TestDefaultMatchingQueryAcceptsOpenBatchLiquidityLine(t *testing.T) {
	st := StatementLine{ID: 1, BusinessId: "biz", JournalId: 2}
	q := st.DefaultAmlsMatchingQuery().InBatchPayments(nil, []BatchPaymentState{BatchPaymentStateReconciled}, []PaymentState{PaymentStateInProcess})
	q.BatchJournalId = st.JournalId
	if !q.Matches(batchLiquidityLine()) {
		t.Fatalf("expected open batch liquidity line to match")
	}
}

func TestAmlQueryRejections(t *testing.T) {
	st := StatementLine{ID: 1, BusinessId: "biz", JournalId: 2}
	base := st.DefaultAmlsMatchingQuery().InBatchPayments(nil, []BatchPaymentState{BatchPaymentStateReconciled}, []PaymentState{PaymentStateInProcess})

	cases := []struct {
		name   string
		mutate func(l *AccountMoveLine)
	}{
		{"reconciled", func(l *AccountMoveLine) { l.Reconciled = true }},
		{"draft move", func(l *AccountMoveLine) { l.ParentState = MoveStateDraft }},
		{"not reconcilable", func(l *AccountMoveLine) { l.AccountReconcilable = false }},
		{"other tenant", func(l *AccountMoveLine) { l.BusinessId = "other" }},
		{"no batch", func(l *AccountMoveLine) { l.BatchPaymentId = 0 }},
		{"batch reconciled", func(l *AccountMoveLine) { l.BatchPaymentState = BatchPaymentStateReconciled }},
		{"payment paid", func(l *AccountMoveLine) { l.PaymentState = PaymentStatePaid }},
		{"payment counterpart", func(l *AccountMoveLine) { l.AccountType = AccountTypeReceivable }},
		{"own statement line", func(l *AccountMoveLine) { l.StatementLineId = 1 }},
		{"section", func(l *AccountMoveLine) { l.DisplayType = DisplayTypeLineSection }},
	}
	for _, tc := range cases {
		l := batchLiquidityLine()
		tc.mutate(&l)
		if base.Matches(l) {
			t.Fatalf("%s: expected no match", tc.name)
		}
	}
}

func TestAmlQueryIdRestrictions(t *testing.T) {
	l := batchLiquidityLine()
	if !(AmlQuery{}).Matches(l) {
		t.Fatalf("nil ids must not restrict")
	}
	if (AmlQuery{Ids: []int{}}).Matches(l) {
		t.Fatalf("empty ids must match nothing")
	}
	if !(AmlQuery{BatchPaymentIds: []int{7}}).Matches(l) {
		t.Fatalf("expected batch 7 to match")
	}
	if (AmlQuery{BatchPaymentIds: []int{8}}).Matches(l) {
		t.Fatalf("batch 8 must not match")
	}
	q := AmlQuery{}.InBatchPayments([]int{}, nil, nil)
	if !q.IsEmpty() {
		t.Fatalf("empty batch restriction should make the query empty")
	}
}

func TestAmlQueryFilterKeepsOrder(t *testing.T) {
	a, b, c := batchLiquidityLine(), batchLiquidityLine(), batchLiquidityLine()
	a.ID, b.ID, c.ID = 3, 1, 2
	b.Reconciled = true
	out := AmlQuery{OnlyUnreconciled: true}.Filter([]AccountMoveLine{a, b, c})
	if len(out) != 2 || out[0].ID != 3 || out[1].ID != 2 {
		t.Fatalf("unexpected filter result: %+v", out)
	}
}
