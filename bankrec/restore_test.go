package bankrec

import (
	"testing"

	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreDropsSettledBatch(t *testing.T) {
	f := newBatchFixture(t, "1000")
	require.NoError(t, f.e.AddNewBatchPayments(ctx, f.s, []int{f.batchId}))
	batchLine := onlyLine(t, f.s, FlagNewBatch)
	b := f.h.batches[f.batchId]
	b.State = models.BatchPaymentStateReconciled
	f.h.batches[f.batchId] = b

	restored, err := f.e.Restore(ctx, "r1", f.s.StatementLineId, []Command{
		{Op: CommandCreate, LineId: batchLine.ID, Values: batchLine},
	})
	require.NoError(t, err)
	assert.Equal(t, []Flag{FlagLiquidity, FlagAutoBalance}, flags(restored))
	assert.Equal(t, "-1000", onlyLine(t, restored, FlagAutoBalance).Balance.String())
}

func TestRestoreReplaysEditsAndManualLines(t *testing.T) {
	h := newFakeHost()
	stId := h.addStatementLine(journalEur, "2024-03-10", "1000", partnerAcme)
	_, termId := h.addInvoice(partnerAcme, eur, "2024-01-10", "250", "250")
	_, settledTerm := h.addInvoice(partnerAcme, eur, "2024-01-11", "80", "80")
	e := newTestEngine(h, RemainderPolicyUnset)

	aml := h.amls[settledTerm]
	aml.Reconciled = true
	h.amls[settledTerm] = aml

	restored, err := e.Restore(ctx, "r2", stId, []Command{
		{Op: CommandCreate, LineId: "L7", Values: ProposalLine{Flag: FlagNewAml, SourceAmlId: termId, AmountCurrency: dec("-250")}},
		{Op: CommandCreate, LineId: "L8", Values: ProposalLine{Flag: FlagNewAml, SourceAmlId: settledTerm}},
		{Op: CommandCreate, LineId: "L9", Values: ProposalLine{Flag: FlagManual, AccountId: accRevenue, AmountCurrency: dec("-50"), Name: "fee"}},
		{Op: CommandUpdate, LineId: "L7", Values: ProposalLine{AmountCurrency: dec("-100")}},
		{Op: CommandUpdate, LineId: "L8", Values: ProposalLine{AmountCurrency: dec("-10")}},
		{Op: CommandCreate, LineId: "X-A1", Values: ProposalLine{Flag: FlagExchangeDiff, Balance: dec("5")}},
	})
	require.NoError(t, err)

	assert.Equal(t, []Flag{FlagLiquidity, FlagNewAml, FlagManual, FlagAutoBalance}, flags(restored))
	edited, ok := restored.Line("L7")
	require.True(t, ok)
	assert.True(t, edited.ManuallyEdited)
	assert.Equal(t, "-100", edited.Balance.String())
	manual, ok := restored.Line("L9")
	require.True(t, ok)
	assert.Equal(t, "-50", manual.Balance.String())
	assert.Equal(t, "-850", onlyLine(t, restored, FlagAutoBalance).Balance.String())
	assert.Equal(t, 9, restored.NextSeq)
	assertBalanced(t, restored)

	// fresh ids continue after the restored ones
	added, err := e.AddManualLine(ctx, restored, ManualLineInput{AccountId: accRevenue, AmountCurrency: dec("-1")})
	require.NoError(t, err)
	assert.Equal(t, "L10", added.ID)
}

func TestRestoreRejectsUnknownCommand(t *testing.T) {
	f := newBatchFixture(t, "1000")
	_, err := f.e.Restore(ctx, "r3", f.s.StatementLineId, []Command{{Op: "link"}})
	require.ErrorIs(t, err, ErrValidation)
}
