package bankrec

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type counterpartAmounts struct {
	AmountCurrency decimal.Decimal
	Balance        decimal.Decimal
}

// counterpartAmountsUsingStLineRate values an amount with the rates implied by the statement
// line itself (transaction/journal and journal/company ratios) instead of the rate table.
// amountCurrency is in currencyId; the result's AmountCurrency is in the transaction currency.
func (e *Engine) counterpartAmountsUsingStLineRate(ctx context.Context, s *Session, currencyId int, balance, amountCurrency decimal.Decimal) (counterpartAmounts, error) {
	company := s.company()
	journalCur, err := e.currency(ctx, s, s.JournalCurrencyId)
	if err != nil {
		return counterpartAmounts{}, err
	}
	transactionCur, err := e.currency(ctx, s, s.TransactionCurrencyId)
	if err != nil {
		return counterpartAmounts{}, err
	}
	trans := s.TransactionAmount.Abs()
	journal := s.JournalAmount.Abs()
	comp := s.CompanyAmount.Abs()

	// Ratios are applied as multiply-then-divide to keep round figures exact.
	toJournal := func(transAmount decimal.Decimal) decimal.Decimal {
		if trans.IsZero() {
			return decimal.Zero
		}
		return journalCur.Round(transAmount.Mul(journal).Div(trans))
	}
	journalToCompany := func(journalAmount decimal.Decimal) decimal.Decimal {
		if journal.IsZero() {
			return decimal.Zero
		}
		return company.Round(journalAmount.Mul(comp).Div(journal))
	}
	journalToTransaction := func(journalAmount decimal.Decimal) decimal.Decimal {
		if journal.IsZero() {
			return decimal.Zero
		}
		return transactionCur.Round(journalAmount.Mul(trans).Div(journal))
	}

	switch currencyId {
	case s.TransactionCurrencyId:
		return counterpartAmounts{
			AmountCurrency: amountCurrency,
			Balance:        journalToCompany(toJournal(amountCurrency)),
		}, nil
	case s.JournalCurrencyId:
		return counterpartAmounts{
			AmountCurrency: journalToTransaction(amountCurrency),
			Balance:        journalToCompany(amountCurrency),
		}, nil
	default:
		journalAmount := decimal.Zero
		if !comp.IsZero() {
			journalAmount = journalCur.Round(balance.Mul(journal).Div(comp))
		}
		return counterpartAmounts{
			AmountCurrency: journalToTransaction(journalAmount),
			Balance:        balance,
		}, nil
	}
}

// accountBalanceExchangeDiff returns the company-currency gap between what a line is worth at the
// statement's rate and its booked balance, and the account the gap goes to. A zero diff has no account.
func (e *Engine) accountBalanceExchangeDiff(ctx context.Context, s *Session, currencyId int, balance, amountCurrency decimal.Decimal) (int, decimal.Decimal, error) {
	amounts, err := e.counterpartAmountsUsingStLineRate(ctx, s, currencyId, balance, amountCurrency)
	if err != nil {
		return 0, decimal.Zero, err
	}
	origin := amounts.Balance
	switch {
	case currencyId == s.CompanyCurrencyId && s.TransactionCurrencyId != s.CompanyCurrencyId:
		origin = balance
	case currencyId != s.CompanyCurrencyId && s.TransactionCurrencyId == s.CompanyCurrencyId:
		origin, err = e.host.Convert(ctx, amountCurrency, currencyId, s.TransactionCurrencyId, s.Date)
		if err != nil {
			return 0, decimal.Zero, err
		}
	}

	company := s.company()
	diff := company.Round(origin.Sub(balance))
	if diff.IsZero() {
		return 0, decimal.Zero, nil
	}
	accountId := s.IncomeExchangeAccountId
	if diff.IsPositive() {
		accountId = s.ExpenseExchangeAccountId
	}
	if accountId == 0 {
		return 0, decimal.Zero, validationErrorf("exchange difference accounts are not configured")
	}
	return accountId, diff, nil
}

// exchangeDiffKey identifies the source a line or its exchange difference belongs to.
func (e *Engine) exchangeDiffKey(line ProposalLine) string {
	for _, ext := range e.extensions {
		if key, ok := ext.ExchangeDiffKey(line); ok {
			return key
		}
	}
	if (line.Flag == FlagNewAml || line.Flag == FlagExchangeDiff) && line.SourceAmlId != 0 {
		return fmt.Sprintf("aml:%d", line.SourceAmlId)
	}
	return ""
}

// recomputeExchangeDiffs drops every exchange line and regenerates them, each right after its source.
func (e *Engine) recomputeExchangeDiffs(ctx context.Context, s *Session) error {
	var out, autoBalance []ProposalLine
	for _, line := range s.Lines {
		switch line.Flag {
		case FlagExchangeDiff:
			continue
		case FlagAutoBalance:
			autoBalance = append(autoBalance, line)
			continue
		}
		out = append(out, line)
		diffs, err := e.exchangeDiffValues(ctx, s, line)
		if err != nil {
			return err
		}
		out = append(out, diffs...)
	}
	s.Lines = append(out, autoBalance...)
	return nil
}

func (e *Engine) exchangeDiffValues(ctx context.Context, s *Session, line ProposalLine) ([]ProposalLine, error) {
	for _, ext := range e.extensions {
		lines, ok, err := ext.ExchangeDiffValues(ctx, e, s, line)
		if ok || err != nil {
			return lines, err
		}
	}
	if line.Flag != FlagNewAml {
		return nil, nil
	}
	accountId, diff, err := e.accountBalanceExchangeDiff(ctx, s, line.CurrencyId, line.Balance, line.AmountCurrency)
	if err != nil || diff.IsZero() {
		return nil, err
	}
	amountCurrency := decimal.Zero
	if line.CurrencyId == s.CompanyCurrencyId {
		amountCurrency = diff
	}
	return []ProposalLine{{
		ID:                   fmt.Sprintf("X-A%d", line.SourceAmlId),
		Flag:                 FlagExchangeDiff,
		SourceAmlId:          line.SourceAmlId,
		AccountId:            accountId,
		PartnerId:            line.PartnerId,
		CurrencyId:           line.CurrencyId,
		SourceAmountCurrency: amountCurrency,
		SourceBalance:        diff,
		AmountCurrency:       amountCurrency,
		Balance:              diff,
		Name:                 "Exchange Difference: " + line.Name,
		Date:                 s.Date,
	}}, nil
}
