package bankrec

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/shopspring/decimal"
)

// BatchPaymentExtension lets a whole batch payment be matched as one new_batch line.
type BatchPaymentExtension struct {
	NopExtension
}

func (BatchPaymentExtension) Name() string { return "batch_payment" }

// batchContribution is what one member adds to the batch line, counterpart side.
type batchContribution struct {
	CurrencyId     int
	AmountCurrency decimal.Decimal
	Balance        decimal.Decimal
}

// batchContributions lists posted members through their available entries and
// unposted valid members through their signed amounts.
func (e *Engine) batchContributions(ctx context.Context, s *Session, batch models.BatchPayment) ([]batchContribution, error) {
	amls, err := e.availableAmls(ctx, s, batch.ID)
	if err != nil {
		return nil, err
	}
	var out []batchContribution
	for _, aml := range amls {
		out = append(out, batchContribution{
			CurrencyId:     aml.CurrencyId,
			AmountCurrency: aml.AmountResidualCurrency.Neg(),
			Balance:        aml.AmountResidual.Neg(),
		})
	}
	for _, payment := range batch.ValidPayments() {
		if payment.MoveId != 0 {
			continue
		}
		out = append(out, batchContribution{
			CurrencyId:     payment.CurrencyId,
			AmountCurrency: payment.AmountSigned.Neg(),
			Balance:        payment.AmountCompanySigned.Neg(),
		})
	}
	return out, nil
}

// prepareBatchLine builds the new_batch line for what the batch still has open. It returns nil
// when nothing is left.
func (e *Engine) prepareBatchLine(ctx context.Context, s *Session, batch models.BatchPayment) (*ProposalLine, error) {
	cur, err := e.currency(ctx, s, batch.CurrencyId)
	if err != nil {
		return nil, err
	}
	contributions, err := e.batchContributions(ctx, s, batch)
	if err != nil {
		return nil, err
	}
	amountCurrency, balance := decimal.Zero, decimal.Zero
	for _, c := range contributions {
		amount := c.AmountCurrency
		if c.CurrencyId != batch.CurrencyId {
			if amount, err = e.host.Convert(ctx, amount, c.CurrencyId, batch.CurrencyId, s.Date); err != nil {
				return nil, err
			}
		}
		amountCurrency = amountCurrency.Add(amount)
		balance = balance.Add(c.Balance)
	}
	if cur.IsZero(amountCurrency) && s.company().IsZero(balance) {
		return nil, nil
	}

	journal, err := e.host.Journal(ctx, batch.JournalId)
	if err != nil {
		return nil, err
	}
	accountId := journal.OutstandingAccountId(batch.BatchType)
	if accountId == 0 {
		return nil, validationErrorf("journal %s has no outstanding %s account", journal.Name, batch.BatchType)
	}

	partnerId := 0
	for i, payment := range batch.ValidPayments() {
		if i == 0 {
			partnerId = payment.PartnerId
		} else if payment.PartnerId != partnerId {
			partnerId = 0
			break
		}
	}
	return &ProposalLine{
		Flag:                 FlagNewBatch,
		SourceBatchPaymentId: batch.ID,
		SourceAmountCurrency: amountCurrency,
		SourceBalance:        balance,
		AmountCurrency:       amountCurrency,
		Balance:              balance,
		AccountId:            accountId,
		PartnerId:            partnerId,
		CurrencyId:           batch.CurrencyId,
		Name:                 batch.Name,
		Date:                 batch.Date,
	}, nil
}

func (e *Engine) batchPayment(ctx context.Context, batchId int) (*models.BatchPayment, error) {
	batches, err := e.host.BatchPayments(ctx, []int{batchId})
	if err != nil {
		return nil, err
	}
	for i := range batches {
		if batches[i].ID == batchId {
			return &batches[i], nil
		}
	}
	return nil, nil
}

func (BatchPaymentExtension) ExchangeDiffKey(line ProposalLine) (string, bool) {
	switch {
	case line.Flag == FlagNewBatch:
	case line.Flag == FlagExchangeDiff && line.SourceAmlId == 0 && line.SourceBatchPaymentId != 0:
	default:
		return "", false
	}
	return fmt.Sprintf("batch:%d", line.SourceBatchPaymentId), true
}

// PrepareRestoredLine rebuilds a new_batch line from the live batch; stale or settled batches are dropped.
func (BatchPaymentExtension) PrepareRestoredLine(ctx context.Context, e *Engine, s *Session, values ProposalLine) (*ProposalLine, bool, error) {
	if values.Flag != FlagNewBatch {
		return nil, false, nil
	}
	batchId := values.SourceBatchPaymentId
	if _, ok := s.batchLine(batchId); ok {
		return nil, true, nil
	}
	batch, err := e.batchPayment(ctx, batchId)
	if err != nil {
		return nil, true, err
	}
	if batch == nil || batch.State == models.BatchPaymentStateReconciled {
		e.log(s).WithField("batch_payment_id", batchId).Info("batch payment gone or reconciled; dropped from restored proposal")
		return nil, true, nil
	}
	line, err := e.prepareBatchLine(ctx, s, *batch)
	if err != nil || line == nil {
		return nil, true, err
	}
	s.removeWhere(func(l ProposalLine) bool {
		return l.Flag == FlagNewAml && l.SourceBatchPaymentId == batchId
	})
	return line, true, nil
}

type exchangeGroupKey struct {
	currencyId int
	accountId  int
}

// ExchangeDiffValues emits one exchange line per (currency, account) over the batch's members.
func (BatchPaymentExtension) ExchangeDiffValues(ctx context.Context, e *Engine, s *Session, line ProposalLine) ([]ProposalLine, bool, error) {
	if line.Flag != FlagNewBatch {
		return nil, false, nil
	}
	batch, err := e.batchPayment(ctx, line.SourceBatchPaymentId)
	if err != nil || batch == nil {
		return nil, true, err
	}
	contributions, err := e.batchContributions(ctx, s, *batch)
	if err != nil {
		return nil, true, err
	}

	var order []exchangeGroupKey
	groups := map[exchangeGroupKey]*counterpartAmounts{}
	for _, c := range contributions {
		accountId, diff, err := e.accountBalanceExchangeDiff(ctx, s, c.CurrencyId, c.Balance, c.AmountCurrency)
		if err != nil {
			return nil, true, err
		}
		if diff.IsZero() {
			continue
		}
		key := exchangeGroupKey{currencyId: c.CurrencyId, accountId: accountId}
		g, ok := groups[key]
		if !ok {
			g = &counterpartAmounts{}
			groups[key] = g
			order = append(order, key)
		}
		g.Balance = g.Balance.Add(diff)
		if c.CurrencyId == s.CompanyCurrencyId {
			g.AmountCurrency = g.AmountCurrency.Add(diff)
		}
	}

	var out []ProposalLine
	for _, key := range order {
		g := groups[key]
		if s.company().IsZero(g.Balance) {
			continue
		}
		cur, err := e.currency(ctx, s, key.currencyId)
		if err != nil {
			return nil, true, err
		}
		out = append(out, ProposalLine{
			ID:                   fmt.Sprintf("X-B%d-%d-%d", batch.ID, key.currencyId, key.accountId),
			Flag:                 FlagExchangeDiff,
			SourceBatchPaymentId: batch.ID,
			AccountId:            key.accountId,
			PartnerId:            line.PartnerId,
			CurrencyId:           key.currencyId,
			SourceAmountCurrency: g.AmountCurrency,
			SourceBalance:        g.Balance,
			AmountCurrency:       g.AmountCurrency,
			Balance:              g.Balance,
			Name:                 fmt.Sprintf("Exchange Difference: %s - %s", batch.Name, cur.Symbol),
			Date:                 s.Date,
		})
	}
	return out, true, nil
}

// ValidationLinesVals settles every new_batch line: posted members through their liquidity
// entries, unposted members directly against their invoices. The batch lines are then dropped
// so the base validation only sees what is left.
func (BatchPaymentExtension) ValidationLinesVals(ctx context.Context, e *Engine, s *Session, v *Validation) error {
	for _, line := range s.linesWith(FlagNewBatch) {
		batch, err := e.batchPayment(ctx, line.SourceBatchPaymentId)
		if err != nil {
			return err
		}
		if batch == nil {
			return conflictErrorf("batch payment %d no longer exists", line.SourceBatchPaymentId)
		}
		if batch.State == models.BatchPaymentStateReconciled {
			return conflictErrorf("batch payment %s is already reconciled", batch.Name)
		}
		available, err := e.FetchAvailableAmlsInBatchPayments(ctx, s, []int{batch.ID})
		if err != nil {
			return err
		}
		isAvailable := map[int]bool{}
		for _, id := range available[batch.ID] {
			isAvailable[id] = true
		}

		var toValidate []models.Payment
		settled := false
		for _, payment := range batch.ValidPayments() {
			if payment.MoveId == 0 {
				if err := e.allocateUnpostedPayment(ctx, s, batch, payment, v); err != nil {
					return err
				}
				toValidate = append(toValidate, payment)
				continue
			}
			liquidity, _, _, err := e.host.SeekForLines(ctx, payment)
			if err != nil {
				return err
			}
			if len(liquidity) == 0 {
				return hostContractErrorf("payment %s has no liquidity line", payment.Name)
			}
			for _, aml := range liquidity {
				if !isAvailable[aml.ID] {
					if aml.Reconciled {
						return conflictErrorf("journal item %d of payment %s is already reconciled", aml.ID, payment.Name)
					}
					continue
				}
				idx := v.add(LineCommand{
					Flag:                 FlagNewAml,
					AccountId:            aml.AccountId,
					PartnerId:            aml.PartnerId,
					CurrencyId:           aml.CurrencyId,
					AmountCurrency:       aml.AmountResidualCurrency.Neg(),
					Balance:              aml.AmountResidual.Neg(),
					Name:                 aml.Name,
					SourceAmlId:          aml.ID,
					SourceBatchPaymentId: batch.ID,
				})
				v.reconcile(idx, aml.ID)
				settled = true
			}
		}
		if len(toValidate) > 0 {
			if err := e.host.ActionValidate(ctx, toValidate); err != nil {
				return err
			}
			for _, payment := range toValidate {
				v.ValidatedPaymentIds = append(v.ValidatedPaymentIds, payment.ID)
			}
		}
		if settled || len(toValidate) > 0 {
			v.SettledBatchPaymentIds = append(v.SettledBatchPaymentIds, batch.ID)
		}
	}
	s.removeWhere(func(l ProposalLine) bool { return l.Flag == FlagNewBatch })
	return nil
}

type allocationBucket struct {
	accountId      int
	amountCurrency decimal.Decimal
	amlIds         []int
}

// allocateUnpostedPayment spreads an unposted payment over its invoices' open term lines,
// oldest first, and books what is left according to the remainder policy.
func (e *Engine) allocateUnpostedPayment(ctx context.Context, s *Session, batch *models.BatchPayment, payment models.Payment, v *Validation) error {
	cur, err := e.currency(ctx, s, payment.CurrencyId)
	if err != nil {
		return err
	}
	if cur.IsZero(payment.AmountSigned) {
		return nil
	}
	sign := payment.Sign()
	remaining := payment.AmountSigned.Abs()

	var buckets []*allocationBucket
	bucketFor := func(accountId int) *allocationBucket {
		for _, b := range buckets {
			if b.accountId == accountId {
				return b
			}
		}
		b := &allocationBucket{accountId: accountId}
		buckets = append(buckets, b)
		return b
	}

	terms, err := e.host.PaymentTermLines(ctx, payment)
	if err != nil {
		return err
	}
	for _, term := range terms {
		if !remaining.IsPositive() {
			break
		}
		open := term.AmountResidualCurrency.Abs()
		if term.CurrencyId != payment.CurrencyId {
			if open, err = e.host.Convert(ctx, open, term.CurrencyId, payment.CurrencyId, s.Date); err != nil {
				return err
			}
		}
		current := decimal.Min(remaining, open)
		if cur.IsZero(current) {
			continue
		}
		b := bucketFor(term.AccountId)
		b.amountCurrency = b.amountCurrency.Sub(current.Mul(sign))
		b.amlIds = append(b.amlIds, term.ID)
		remaining = cur.Round(remaining.Sub(current))
	}
	if remaining.IsPositive() {
		accountId, err := e.remainderAccountId(ctx, s, payment)
		if err != nil {
			return err
		}
		b := bucketFor(accountId)
		b.amountCurrency = b.amountCurrency.Sub(remaining.Mul(sign))
	}

	company := s.company()
	total := payment.AmountCompanySigned.Neg()
	allocated := decimal.Zero
	for i, b := range buckets {
		balance := total.Sub(allocated)
		if i < len(buckets)-1 {
			balance = company.Round(b.amountCurrency.Mul(payment.AmountCompanySigned).Div(payment.AmountSigned))
		}
		allocated = allocated.Add(balance)
		name := payment.Memo
		if name == "" {
			name = payment.Name
		}
		idx := v.add(LineCommand{
			Flag:                 FlagNewBatch,
			AccountId:            b.accountId,
			PartnerId:            payment.PartnerId,
			CurrencyId:           payment.CurrencyId,
			AmountCurrency:       b.amountCurrency,
			Balance:              balance,
			Name:                 name,
			SourceBatchPaymentId: batch.ID,
		})
		v.reconcile(idx, b.amlIds...)
	}
	return nil
}

func (e *Engine) remainderAccountId(ctx context.Context, s *Session, payment models.Payment) (int, error) {
	switch e.settings.BatchRemainderPolicy {
	case RemainderPolicyReceivable:
		if payment.PartnerId == 0 {
			return 0, validationErrorf("payment %s has no partner to book its remainder on", payment.Name)
		}
		partner, err := e.host.Partner(ctx, payment.PartnerId)
		if err != nil {
			return 0, err
		}
		if id := partner.CounterpartAccountId(payment.PaymentType); id != 0 {
			return id, nil
		}
		return 0, hostContractErrorf("partner %d has no %s counterpart account", partner.ID, payment.PaymentType)
	case RemainderPolicySuspense:
		if s.SuspenseAccountId == 0 {
			return 0, validationErrorf("journal %d has no suspense account", s.JournalId)
		}
		return s.SuspenseAccountId, nil
	case RemainderPolicyWriteoff:
		if s.WriteoffAccountId == 0 {
			return 0, validationErrorf("no write-off account configured")
		}
		return s.WriteoffAccountId, nil
	default:
		return 0, ErrRemainderPolicyUnset
	}
}
