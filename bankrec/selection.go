package bankrec

import (
	"context"
	"maps"
	"slices"

	"github.com/mmdatafocus/bankrec_backend/utils"
)

// computeSelected derives which batches and entries the proposal fully represents. A batch
// counts when it has its own line, or when new_aml lines cover exactly its available entries.
func (e *Engine) computeSelected(ctx context.Context, s *Session) error {
	referenced := map[int][]int{}
	var batchLineIds, amlIds []int
	for _, l := range s.Lines {
		switch l.Flag {
		case FlagNewAml:
			amlIds = append(amlIds, l.SourceAmlId)
			if l.SourceBatchPaymentId != 0 {
				referenced[l.SourceBatchPaymentId] = append(referenced[l.SourceBatchPaymentId], l.SourceAmlId)
			}
		case FlagNewBatch:
			batchLineIds = append(batchLineIds, l.SourceBatchPaymentId)
		}
	}

	lookup := utils.SortedUniqueInts(append(slices.Collect(maps.Keys(referenced)), batchLineIds...))
	available := map[int][]int{}
	if len(lookup) > 0 {
		var err error
		if available, err = e.FetchAvailableAmlsInBatchPayments(ctx, s, lookup); err != nil {
			return err
		}
	}

	selected := slices.Clone(batchLineIds)
	for batchId, ids := range referenced {
		if len(available[batchId]) > 0 && utils.SameIntSet(ids, available[batchId]) {
			selected = append(selected, batchId)
		}
	}
	for _, batchId := range batchLineIds {
		amlIds = append(amlIds, available[batchId]...)
	}
	s.SelectedBatchPaymentIds = append([]int{}, utils.SortedUniqueInts(selected)...)
	s.SelectedAmlIds = append([]int{}, utils.SortedUniqueInts(amlIds)...)
	return nil
}
