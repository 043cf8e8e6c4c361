package bankrec

import (
	"context"

	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/shopspring/decimal"
)

// AddNewAmls adds one new_aml line per entry. Entries already in the proposal, or covered by a
// batch line, are skipped.
func (e *Engine) AddNewAmls(ctx context.Context, s *Session, amlIds []int, allowPartial bool) error {
	return e.apply(ctx, s, func(st *Session) (bool, error) {
		return true, e.addNewAmls(ctx, st, amlIds, allowPartial)
	})
}

func (e *Engine) addNewAmls(ctx context.Context, s *Session, amlIds []int, allowPartial bool) error {
	amlIds = utils.UniqueSlice(amlIds)
	if len(amlIds) == 0 {
		return nil
	}
	amls, err := e.host.SearchAmls(ctx, models.AmlQuery{BusinessId: s.BusinessId, Ids: amlIds})
	if err != nil {
		return err
	}
	byId := make(map[int]models.AccountMoveLine, len(amls))
	for _, aml := range amls {
		byId[aml.ID] = aml
	}
	covered, err := e.amlsCoveredByBatchLines(ctx, s)
	if err != nil {
		return err
	}

	for _, id := range amlIds {
		aml, ok := byId[id]
		if !ok {
			return validationErrorf("journal item %d not found", id)
		}
		if s.hasAmlLine(id) {
			continue
		}
		if covered[id] {
			e.log(s).WithField("aml_id", id).Debug("journal item already part of a batch line; skipped")
			continue
		}
		if aml.Reconciled {
			return conflictErrorf("journal item %d is already reconciled", id)
		}
		line, err := e.prepareAmlLine(ctx, s, aml, allowPartial)
		if err != nil {
			return err
		}
		s.appendLine(line)
	}
	return nil
}

func (e *Engine) prepareAmlLine(ctx context.Context, s *Session, aml models.AccountMoveLine, allowPartial bool) (ProposalLine, error) {
	if _, err := e.currency(ctx, s, aml.CurrencyId); err != nil {
		return ProposalLine{}, err
	}
	amountCurrency := aml.AmountResidualCurrency.Neg()
	balance := aml.AmountResidual.Neg()
	return ProposalLine{
		Flag:                 FlagNewAml,
		SourceAmlId:          aml.ID,
		SourceBatchPaymentId: aml.BatchPaymentId,
		SourceAmountCurrency: amountCurrency,
		SourceBalance:        balance,
		AmountCurrency:       amountCurrency,
		Balance:              balance,
		AccountId:            aml.AccountId,
		PartnerId:            aml.PartnerId,
		CurrencyId:           aml.CurrencyId,
		Name:                 aml.Name,
		Date:                 aml.Date,
		AllowPartial:         allowPartial,
	}, nil
}

func (e *Engine) amlsCoveredByBatchLines(ctx context.Context, s *Session) (map[int]bool, error) {
	var batchIds []int
	for _, l := range s.linesWith(FlagNewBatch) {
		batchIds = append(batchIds, l.SourceBatchPaymentId)
	}
	covered := map[int]bool{}
	if len(batchIds) == 0 {
		return covered, nil
	}
	available, err := e.FetchAvailableAmlsInBatchPayments(ctx, s, batchIds)
	if err != nil {
		return nil, err
	}
	for _, ids := range available {
		for _, id := range ids {
			covered[id] = true
		}
	}
	return covered, nil
}

// AddNewBatchPayments adds one new_batch line per batch, replacing new_aml lines of its members.
func (e *Engine) AddNewBatchPayments(ctx context.Context, s *Session, batchIds []int) error {
	return e.apply(ctx, s, func(st *Session) (bool, error) {
		return true, e.addNewBatchPayments(ctx, st, batchIds)
	})
}

func (e *Engine) addNewBatchPayments(ctx context.Context, s *Session, batchIds []int) error {
	batchIds = utils.UniqueSlice(batchIds)
	if len(batchIds) == 0 {
		return nil
	}
	batches, err := e.host.BatchPayments(ctx, batchIds)
	if err != nil {
		return err
	}
	byId := make(map[int]models.BatchPayment, len(batches))
	for _, b := range batches {
		byId[b.ID] = b
	}
	for _, id := range batchIds {
		batch, ok := byId[id]
		if !ok {
			return validationErrorf("batch payment %d not found", id)
		}
		if _, ok := s.batchLine(id); ok {
			continue
		}
		if batch.State == models.BatchPaymentStateReconciled {
			return conflictErrorf("batch payment %s is already reconciled", batch.Name)
		}
		line, err := e.prepareBatchLine(ctx, s, batch)
		if err != nil {
			return err
		}
		if line == nil {
			return validationErrorf("batch payment %s has nothing left to reconcile", batch.Name)
		}
		s.removeWhere(func(l ProposalLine) bool {
			return l.Flag == FlagNewAml && l.SourceBatchPaymentId == id
		})
		s.appendLine(*line)
	}
	return nil
}

// RemoveLines drops lines by id. The liquidity line and exchange differences cannot be removed directly.
func (e *Engine) RemoveLines(ctx context.Context, s *Session, lineIds []string) error {
	return e.apply(ctx, s, func(st *Session) (bool, error) {
		return e.removeLines(st, lineIds)
	})
}

func (e *Engine) removeLines(s *Session, lineIds []string) (bool, error) {
	rerunPartial := false
	for _, id := range utils.UniqueSlice(lineIds) {
		line, ok := s.Line(id)
		if !ok {
			return false, validationErrorf("line %s not found", id)
		}
		switch line.Flag {
		case FlagLiquidity:
			return false, validationErrorf("the liquidity line cannot be removed")
		case FlagExchangeDiff:
			return false, validationErrorf("exchange difference lines follow their source and cannot be removed")
		case FlagNewAml, FlagNewBatch:
			rerunPartial = true
		}
		s.removeWhere(func(l ProposalLine) bool { return l.ID == id })
	}
	return rerunPartial, nil
}

// ExpandBatchPayments replaces each batch line by new_aml lines for the batch's available entries.
// Batches without a line are ignored.
func (e *Engine) ExpandBatchPayments(ctx context.Context, s *Session, batchIds []int) error {
	return e.apply(ctx, s, func(st *Session) (bool, error) {
		for _, batchId := range utils.UniqueSlice(batchIds) {
			line, ok := st.batchLine(batchId)
			if !ok {
				continue
			}
			available, err := e.FetchAvailableAmlsInBatchPayments(ctx, st, []int{batchId})
			if err != nil {
				return false, err
			}
			amlIds := available[batchId]
			if len(amlIds) == 0 {
				return false, validationErrorf("batch payment %s has no journal items to expand", line.Name)
			}
			st.removeWhere(func(l ProposalLine) bool { return l.ID == line.ID })
			if err := e.addNewAmls(ctx, st, amlIds, false); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

type ManualLineInput struct {
	AccountId      int             `json:"account_id" validate:"required"`
	PartnerId      int             `json:"partner_id"`
	AmountCurrency decimal.Decimal `json:"amount_currency"`
	Name           string          `json:"name"`
}

// AddManualLine adds a counterpart line in the transaction currency, valued at the statement's rate.
func (e *Engine) AddManualLine(ctx context.Context, s *Session, input ManualLineInput) (ProposalLine, error) {
	var added ProposalLine
	err := e.apply(ctx, s, func(st *Session) (bool, error) {
		line, err := e.prepareManualLine(ctx, st, input)
		if err != nil {
			return false, err
		}
		added = st.appendLine(line)
		return false, nil
	})
	if err != nil {
		return ProposalLine{}, err
	}
	added, _ = s.Line(added.ID)
	return added, nil
}

func (e *Engine) prepareManualLine(ctx context.Context, s *Session, input ManualLineInput) (ProposalLine, error) {
	transactionCur, err := e.currency(ctx, s, s.TransactionCurrencyId)
	if err != nil {
		return ProposalLine{}, err
	}
	if transactionCur.IsZero(input.AmountCurrency) {
		return ProposalLine{}, validationErrorf("manual line amount must not be zero")
	}
	if _, err := e.host.Account(ctx, input.AccountId); err != nil {
		return ProposalLine{}, validationErrorf("account %d: %v", input.AccountId, err)
	}
	amountCurrency := transactionCur.Round(input.AmountCurrency)
	balance, err := e.statementRateBalance(ctx, s, amountCurrency)
	if err != nil {
		return ProposalLine{}, err
	}
	name := input.Name
	if name == "" {
		name = s.PaymentRef
	}
	return ProposalLine{
		Flag:                 FlagManual,
		AccountId:            input.AccountId,
		PartnerId:            input.PartnerId,
		CurrencyId:           s.TransactionCurrencyId,
		SourceAmountCurrency: amountCurrency,
		SourceBalance:        balance,
		AmountCurrency:       amountCurrency,
		Balance:              balance,
		Name:                 name,
		Date:                 s.Date,
	}, nil
}

// EditLineAmount changes a line's amount in its own currency. Editing the auto-balance line
// turns it into a manual line; new_aml lines may only shrink towards zero.
func (e *Engine) EditLineAmount(ctx context.Context, s *Session, lineId string, amountCurrency decimal.Decimal) error {
	return e.apply(ctx, s, func(st *Session) (bool, error) {
		return false, e.editLineAmount(ctx, st, lineId, amountCurrency)
	})
}

func (e *Engine) editLineAmount(ctx context.Context, s *Session, lineId string, amountCurrency decimal.Decimal) error {
	idx := -1
	for i, l := range s.Lines {
		if l.ID == lineId {
			idx = i
		}
	}
	if idx < 0 {
		return validationErrorf("line %s not found", lineId)
	}
	line := &s.Lines[idx]
	cur, err := e.currency(ctx, s, line.CurrencyId)
	if err != nil {
		return err
	}
	amountCurrency = cur.Round(amountCurrency)
	if cur.IsZero(amountCurrency) {
		return validationErrorf("amount must not be zero")
	}

	switch line.Flag {
	case FlagAutoBalance:
		line.Flag = FlagManual
		line.ID = s.newLineId()
		fallthrough
	case FlagManual:
		balance := amountCurrency
		if line.CurrencyId != s.CompanyCurrencyId {
			if balance, err = e.statementRateBalance(ctx, s, amountCurrency); err != nil {
				return err
			}
		}
		line.AmountCurrency = amountCurrency
		line.Balance = balance
		line.SourceAmountCurrency = amountCurrency
		line.SourceBalance = balance
	case FlagNewAml:
		source := line.SourceAmountCurrency
		if amountCurrency.Sign() != source.Sign() || cur.CompareAmounts(amountCurrency.Abs(), source.Abs()) > 0 {
			return validationErrorf("amount of line %s must keep its sign and not exceed %s", lineId, source.String())
		}
		line.AmountCurrency = amountCurrency
		line.Balance = s.company().Round(line.SourceBalance.Mul(amountCurrency).Div(source))
		line.ManuallyEdited = true
		line.Partial = cur.CompareAmounts(amountCurrency.Abs(), source.Abs()) < 0
	default:
		return validationErrorf("%s lines cannot be edited", line.Flag)
	}
	return nil
}
