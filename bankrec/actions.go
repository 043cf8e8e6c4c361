package bankrec

import (
	"context"

	"github.com/mmdatafocus/bankrec_backend/models"
)

// JsActionAddNewBatchPayment adds a batch line; adding a batch already in the proposal does nothing.
func (e *Engine) JsActionAddNewBatchPayment(ctx context.Context, s *Session, batchId int) error {
	return e.AddNewBatchPayments(ctx, s, []int{batchId})
}

// JsActionRemoveNewBatchPayment removes every new_aml or new_batch line sourced from the batch.
func (e *Engine) JsActionRemoveNewBatchPayment(ctx context.Context, s *Session, batchId int) error {
	var lineIds []string
	for _, l := range s.Lines {
		if (l.Flag == FlagNewAml || l.Flag == FlagNewBatch) && l.SourceBatchPaymentId == batchId {
			lineIds = append(lineIds, l.ID)
		}
	}
	if len(lineIds) == 0 {
		return nil
	}
	return e.RemoveLines(ctx, s, lineIds)
}

// Action tells the client which record to open.
type Action struct {
	Type     string `json:"type"`
	ResModel string `json:"res_model"`
	ResId    int    `json:"res_id"`
	ViewMode string `json:"view_mode"`
	Target   string `json:"target"`
}

const (
	ResModelBatchPayment  = "batch_payment"
	ResModelPayment       = "payment"
	ResModelAccountMove   = "account_move"
	ResModelStatementLine = "statement_line"
)

func formAction(model string, id int) *Action {
	return &Action{Type: "act_window", ResModel: model, ResId: id, ViewMode: "form", Target: "current"}
}

// JsActionRedirectToMove opens the record behind the line at formIndex: its batch payment when
// it has one, otherwise the payment or journal entry of its source item.
func (e *Engine) JsActionRedirectToMove(ctx context.Context, s *Session, formIndex int) (*Action, error) {
	line, ok := s.LineAt(formIndex)
	if !ok {
		return nil, validationErrorf("no line at index %d", formIndex)
	}
	if line.SourceBatchPaymentId != 0 {
		return formAction(ResModelBatchPayment, line.SourceBatchPaymentId), nil
	}
	if line.Flag == FlagLiquidity {
		return formAction(ResModelStatementLine, s.StatementLineId), nil
	}
	if line.SourceAmlId == 0 {
		return nil, validationErrorf("line %s has no source to open", line.ID)
	}
	amls, err := e.host.SearchAmls(ctx, models.AmlQuery{BusinessId: s.BusinessId, Ids: []int{line.SourceAmlId}})
	if err != nil {
		return nil, err
	}
	if len(amls) == 0 {
		return nil, validationErrorf("journal item %d not found", line.SourceAmlId)
	}
	move, err := e.host.Move(ctx, amls[0].MoveId)
	if err != nil {
		return nil, err
	}
	if move.PaymentId != 0 {
		return formAction(ResModelPayment, move.PaymentId), nil
	}
	return formAction(ResModelAccountMove, move.ID), nil
}
