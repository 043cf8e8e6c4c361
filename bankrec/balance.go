package bankrec

import (
	"context"

	"github.com/shopspring/decimal"
)

func (e *Engine) resetPartialLines(s *Session) {
	for i := range s.Lines {
		l := &s.Lines[i]
		if l.Flag == FlagNewAml && l.Partial && !l.ManuallyEdited {
			l.AmountCurrency = l.SourceAmountCurrency
			l.Balance = l.SourceBalance
			l.Partial = false
		}
	}
}

// checkApplyPartialMatching shrinks the last partial-capable new_aml line so the proposal
// does not consume more than the statement line still needs. It reports whether it changed anything.
func (e *Engine) checkApplyPartialMatching(ctx context.Context, s *Session) (bool, error) {
	target := -1
	for i, l := range s.Lines {
		if l.Flag == FlagNewAml && l.AllowPartial && !l.ManuallyEdited {
			target = i
		}
	}
	if target < 0 {
		return false, nil
	}
	line := s.Lines[target]
	key := e.exchangeDiffKey(line)

	need := decimal.Zero
	for i, l := range s.Lines {
		if i == target || l.Flag == FlagAutoBalance {
			continue
		}
		if l.Flag == FlagExchangeDiff && e.exchangeDiffKey(l) == key {
			continue
		}
		need = need.Sub(l.Balance)
	}

	_, diff, err := e.accountBalanceExchangeDiff(ctx, s, line.CurrencyId, line.SourceBalance, line.SourceAmountCurrency)
	if err != nil {
		return false, err
	}
	full := line.SourceBalance.Add(diff)
	company := s.company()
	if company.IsZero(need) || company.IsZero(full) || need.Sign() != full.Sign() ||
		company.CompareAmounts(need.Abs(), full.Abs()) >= 0 {
		return false, nil
	}

	cur, err := e.currency(ctx, s, line.CurrencyId)
	if err != nil {
		return false, err
	}
	l := &s.Lines[target]
	l.AmountCurrency = cur.Round(line.SourceAmountCurrency.Mul(need).Div(full))
	l.Balance = company.Round(line.SourceBalance.Mul(need).Div(full))
	l.Partial = true
	e.log(s).WithField("aml_id", l.SourceAmlId).Debug("partial matching applied")
	return true, nil
}

// openAmounts is what the statement line still misses: company balance and transaction currency amount.
func (e *Engine) openAmounts(ctx context.Context, s *Session) (decimal.Decimal, decimal.Decimal, error) {
	balance := decimal.Zero
	amountCurrency := decimal.Zero
	for _, l := range s.Lines {
		if l.Flag == FlagAutoBalance {
			continue
		}
		balance = balance.Sub(l.Balance)
		switch {
		case s.TransactionCurrencyId == s.CompanyCurrencyId:
		case l.CurrencyId == s.TransactionCurrencyId:
			amountCurrency = amountCurrency.Sub(l.AmountCurrency)
		default:
			amounts, err := e.counterpartAmountsUsingStLineRate(ctx, s, l.CurrencyId, l.Balance, l.AmountCurrency)
			if err != nil {
				return decimal.Zero, decimal.Zero, err
			}
			amountCurrency = amountCurrency.Sub(amounts.AmountCurrency)
		}
	}
	if s.TransactionCurrencyId == s.CompanyCurrencyId {
		amountCurrency = balance
	}
	return balance, amountCurrency, nil
}

// addAutoBalanceLine replaces the auto-balance line with one absorbing the current imbalance.
func (e *Engine) addAutoBalanceLine(ctx context.Context, s *Session) error {
	s.removeWhere(func(l ProposalLine) bool { return l.Flag == FlagAutoBalance })
	balance, amountCurrency, err := e.openAmounts(ctx, s)
	if err != nil {
		return err
	}
	transactionCur, err := e.currency(ctx, s, s.TransactionCurrencyId)
	if err != nil {
		return err
	}
	if s.company().IsZero(balance) && transactionCur.IsZero(amountCurrency) {
		return nil
	}
	if s.SuspenseAccountId == 0 {
		return validationErrorf("journal %d has no suspense account", s.JournalId)
	}
	s.Lines = append(s.Lines, ProposalLine{
		ID:                   autoBalanceLineId,
		Flag:                 FlagAutoBalance,
		AccountId:            s.SuspenseAccountId,
		PartnerId:            s.PartnerId,
		CurrencyId:           s.TransactionCurrencyId,
		SourceAmountCurrency: amountCurrency,
		SourceBalance:        balance,
		AmountCurrency:       amountCurrency,
		Balance:              balance,
		Name:                 s.PaymentRef,
		Date:                 s.Date,
	})
	return nil
}

// statementRateBalance values an amount of the transaction currency at the statement's own rate.
func (e *Engine) statementRateBalance(ctx context.Context, s *Session, amountCurrency decimal.Decimal) (decimal.Decimal, error) {
	amounts, err := e.counterpartAmountsUsingStLineRate(ctx, s, s.TransactionCurrencyId, decimal.Zero, amountCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	return amounts.Balance, nil
}
