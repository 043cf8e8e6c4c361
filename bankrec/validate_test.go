package bankrec

import (
	"context"
	"testing"

	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// overpaidBatch builds a 1200 payment against a 1000 invoice, so 200 needs a home.
func overpaidBatch(t *testing.T, policy RemainderPolicy) (*fakeHost, *Engine, *Session, int) {
	h := newFakeHost()
	stId := h.addStatementLine(journalEur, "2024-03-10", "1200", partnerAcme)
	invoiceId, termId := h.addInvoice(partnerAcme, eur, "2024-01-10", "1000", "1000")
	batchId := h.addBatch("BATCH/005", journalEur, eur, models.PaymentTypeInbound)
	h.addUnpostedPayment(batchId, partnerAcme, eur, "1200", "1200", invoiceId)
	e := newTestEngine(h, policy)
	s := openSession(t, e, stId)
	require.NoError(t, e.AddNewBatchPayments(ctx, s, []int{batchId}))
	return h, e, s, termId
}

func TestRemainderPolicyUnsetFailsClosed(t *testing.T) {
	h, e, s, _ := overpaidBatch(t, RemainderPolicyUnset)

	_, err := e.Validate(ctx, s)
	require.ErrorIs(t, err, ErrRemainderPolicyUnset)
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, h.validated)
}

func TestRemainderPolicies(t *testing.T) {
	cases := []struct {
		policy   RemainderPolicy
		accounts []int
		balances []string
	}{
		{RemainderPolicyReceivable, []int{accReceivable}, []string{"-1200"}},
		{RemainderPolicySuspense, []int{accReceivable, accSuspense}, []string{"-1000", "-200"}},
		{RemainderPolicyWriteoff, []int{accReceivable, accWriteoff}, []string{"-1000", "-200"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.policy), func(t *testing.T) {
			_, e, s, termId := overpaidBatch(t, tc.policy)

			v, err := e.Validate(ctx, s)
			require.NoError(t, err)
			require.Len(t, v.LineCommands, 1+len(tc.accounts))
			for i, accountId := range tc.accounts {
				cmd := v.LineCommands[i+1]
				assert.Equal(t, accountId, cmd.AccountId)
				assert.Equal(t, tc.balances[i], cmd.Balance.String())
			}
			assert.Equal(t, []ReconcileInstruction{{CommandIndex: 1, AmlIds: []int{termId}}}, v.ToReconcile)
		})
	}
}

func TestFirstFitOverOldestTermLines(t *testing.T) {
	h := newFakeHost()
	stId := h.addStatementLine(journalEur, "2024-03-10", "700", partnerAcme)
	newer, newerTerm := h.addInvoice(partnerAcme, eur, "2024-02-10", "500", "500")
	older, olderTerm := h.addInvoice(partnerAcme, eur, "2024-01-10", "400", "400")
	batchId := h.addBatch("BATCH/006", journalEur, eur, models.PaymentTypeInbound)
	h.addUnpostedPayment(batchId, partnerAcme, eur, "700", "700", newer, older)
	e := newTestEngine(h, RemainderPolicyUnset)
	s := openSession(t, e, stId)
	require.NoError(t, e.AddNewBatchPayments(ctx, s, []int{batchId}))

	v, err := e.Validate(ctx, s)
	require.NoError(t, err)
	require.Len(t, v.LineCommands, 2)
	assert.Equal(t, "-700", v.LineCommands[1].Balance.String())
	assert.Equal(t, []ReconcileInstruction{{CommandIndex: 1, AmlIds: []int{olderTerm, newerTerm}}}, v.ToReconcile)
}

func TestBatchWithoutValidMembersLeavesResidueOnAutoBalance(t *testing.T) {
	f := newBatchFixture(t, "1000")
	require.NoError(t, f.e.AddNewBatchPayments(ctx, f.s, []int{f.batchId}))
	for _, p := range f.h.payments {
		f.h.setPaymentState(p.ID, models.PaymentStateCanceled)
	}

	v, err := f.e.Validate(ctx, f.s)
	require.NoError(t, err)
	require.Len(t, v.LineCommands, 2)
	assert.Equal(t, FlagAutoBalance, v.LineCommands[1].Flag)
	assert.Equal(t, accSuspense, v.LineCommands[1].AccountId)
	assert.Equal(t, "-1000", v.LineCommands[1].Balance.String())
	assert.Empty(t, v.ToReconcile)
}

func TestValidateConflictsWhenBatchSettledElsewhere(t *testing.T) {
	f := newBatchFixture(t, "1000")
	require.NoError(t, f.e.AddNewBatchPayments(ctx, f.s, []int{f.batchId}))
	b := f.h.batches[f.batchId]
	b.State = models.BatchPaymentStateReconciled
	f.h.batches[f.batchId] = b

	_, err := f.e.Validate(ctx, f.s)
	require.ErrorIs(t, err, ErrReconciliationConflict)
}

func TestExpandThenValidateMatchesAddAmlsThenValidate(t *testing.T) {
	expanded := newBatchFixture(t, "1000")
	require.NoError(t, expanded.e.AddNewBatchPayments(ctx, expanded.s, []int{expanded.batchId}))
	require.NoError(t, expanded.e.ExpandBatchPayments(ctx, expanded.s, []int{expanded.batchId}))
	v1, err := expanded.e.Validate(ctx, expanded.s)
	require.NoError(t, err)

	direct := newBatchFixture(t, "1000")
	require.NoError(t, direct.e.AddNewAmls(ctx, direct.s, []int{direct.aml1, direct.aml2}, false))
	v2, err := direct.e.Validate(ctx, direct.s)
	require.NoError(t, err)

	require.Len(t, v1.LineCommands, len(v2.LineCommands))
	for i := range v1.LineCommands {
		assert.Equal(t, v2.LineCommands[i].AccountId, v1.LineCommands[i].AccountId)
		assert.Equal(t, v2.LineCommands[i].Balance.String(), v1.LineCommands[i].Balance.String())
	}
	assert.Len(t, v1.ToReconcile, 2)
	assert.Len(t, v2.ToReconcile, 2)
}

type recordingExtension struct {
	NopExtension
	sawBatchLines []int
}

func (r *recordingExtension) Name() string { return "recording" }

func (r *recordingExtension) ValidationLinesVals(_ context.Context, _ *Engine, s *Session, _ *Validation) error {
	r.sawBatchLines = append(r.sawBatchLines, len(s.linesWith(FlagNewBatch)))
	return nil
}

func TestExtensionsRunAfterBatchSupport(t *testing.T) {
	h := newFakeHost()
	stId := h.addStatementLine(journalEur, "2024-03-10", "1000", partnerAcme)
	batchId := h.addBatch("BATCH/001", journalEur, eur, models.PaymentTypeInbound)
	h.addPostedPayment(batchId, partnerAcme, eur, "1000", "1000")
	ext := &recordingExtension{}
	e := NewEngine(h, Settings{}, nil, ext)
	s := openSession(t, e, stId)
	require.NoError(t, e.AddNewBatchPayments(ctx, s, []int{batchId}))

	_, err := e.Validate(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ext.sawBatchLines)
}

func TestParseRemainderPolicy(t *testing.T) {
	p, err := ParseRemainderPolicy(" Suspense ")
	require.NoError(t, err)
	assert.Equal(t, RemainderPolicySuspense, p)

	p, err = ParseRemainderPolicy("")
	require.NoError(t, err)
	assert.Equal(t, RemainderPolicyUnset, p)

	_, err = ParseRemainderPolicy("partner")
	require.Error(t, err)
}

func TestCurrencyCheckNeedsOneSharedCurrency(t *testing.T) {
	h := newFakeHost()
	stId := h.addStatementLine(journalUsd, "2024-03-10", "1000", partnerAcme)
	e := newTestEngine(h, RemainderPolicyUnset)
	s := openSession(t, e, stId)
	require.Contains(t, s.Currencies, usd)

	// balanced in EUR; the USD and EUR amounts cannot be summed, so they are not checked
	mixed := &Validation{LineCommands: []LineCommand{
		{Flag: FlagLiquidity, AccountId: accBank, CurrencyId: usd, AmountCurrency: dec("1000"), Balance: dec("1050")},
		{Flag: FlagManual, AccountId: accRevenue, CurrencyId: eur, AmountCurrency: dec("-1050"), Balance: dec("-1050")},
	}}
	require.NoError(t, e.closeBalance(s, mixed))
	assert.Len(t, mixed.LineCommands, 2)

	// balanced in EUR but off by 0.50 USD
	shared := &Validation{LineCommands: []LineCommand{
		{Flag: FlagLiquidity, AccountId: accBank, CurrencyId: usd, AmountCurrency: dec("1000"), Balance: dec("1050")},
		{Flag: FlagManual, AccountId: accRevenue, CurrencyId: usd, AmountCurrency: dec("-999.50"), Balance: dec("-1050")},
	}}
	err := e.closeBalance(s, shared)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "in USD")
}
