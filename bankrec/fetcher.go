package bankrec

import (
	"context"
	"slices"

	"github.com/mmdatafocus/bankrec_backend/models"
)

// availableAmlsQuery is the default matching domain narrowed to liquidity lines of valid
// members of the given batches, on the statement's journal, excluding reconciled batches.
func availableAmlsQuery(s *Session, batchIds []int) models.AmlQuery {
	st := models.StatementLine{ID: s.StatementLineId, BusinessId: s.BusinessId}
	q := st.DefaultAmlsMatchingQuery().InBatchPayments(
		batchIds,
		[]models.BatchPaymentState{models.BatchPaymentStateReconciled},
		models.BatchPayment{}.ValidPaymentStates(),
	)
	q.BatchJournalId = s.JournalId
	return q
}

// FetchAvailableAmlsInBatchPayments maps each batch to the ids (ascending) of the entries the
// statement line may still settle through it. Batches with nothing available are absent.
// A nil batchIds means every batch.
func (e *Engine) FetchAvailableAmlsInBatchPayments(ctx context.Context, s *Session, batchIds []int) (map[int][]int, error) {
	out := map[int][]int{}
	if batchIds != nil && len(batchIds) == 0 {
		return out, nil
	}
	amls, err := e.host.SearchAmls(ctx, availableAmlsQuery(s, batchIds))
	if err != nil {
		return nil, err
	}
	for _, aml := range amls {
		out[aml.BatchPaymentId] = append(out[aml.BatchPaymentId], aml.ID)
	}
	for batchId := range out {
		slices.Sort(out[batchId])
	}
	return out, nil
}

// availableAmls loads the entries FetchAvailableAmlsInBatchPayments returns for one batch.
func (e *Engine) availableAmls(ctx context.Context, s *Session, batchId int) ([]models.AccountMoveLine, error) {
	available, err := e.FetchAvailableAmlsInBatchPayments(ctx, s, []int{batchId})
	if err != nil {
		return nil, err
	}
	ids := available[batchId]
	if len(ids) == 0 {
		return nil, nil
	}
	return e.host.SearchAmls(ctx, models.AmlQuery{BusinessId: s.BusinessId, Ids: ids})
}
