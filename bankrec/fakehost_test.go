package bankrec

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/shopspring/decimal"
)

const testBusinessId = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

const (
	eur = 1
	usd = 2
	jpy = 3

	accBank           = 100
	accOutstandingIn  = 101
	accOutstandingOut = 102
	accReceivable     = 110
	accPayable        = 120
	accFxIncome       = 170
	accFxExpense      = 171
	accWriteoff       = 180
	accSuspense       = 190
	accRevenue        = 400

	journalEur = 1
	journalUsd = 2

	partnerAcme   = 1
	partnerGlobex = 2
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeRate struct {
	currencyId int
	from       time.Time
	rate       decimal.Decimal
}

// fakeHost is an in-memory ledger with the joins SearchAmls performs in SQL.
type fakeHost struct {
	business        models.Business
	currencies      map[int]models.Currency
	rates           []fakeRate
	accounts        map[int]models.Account
	journals        map[int]models.Journal
	partners        map[int]models.Partner
	statementLines  map[int]models.StatementLine
	moves           map[int]models.AccountMove
	amls            map[int]models.AccountMoveLine
	payments        map[int]models.Payment
	batches         map[int]models.BatchPayment
	paymentInvoices map[int][]int
	validated       []int
	seq             int
}

func newFakeHost() *fakeHost {
	t, f := true, false
	h := &fakeHost{
		business: models.Business{
			ID:                       uuid.MustParse(testBusinessId),
			Name:                     "Demo Co",
			BaseCurrencyId:           eur,
			IncomeExchangeAccountId:  accFxIncome,
			ExpenseExchangeAccountId: accFxExpense,
			WriteoffAccountId:        accWriteoff,
		},
		currencies: map[int]models.Currency{
			eur: {ID: eur, Symbol: "EUR", DecimalPlaces: models.DecimalPlacesTwo},
			usd: {ID: usd, Symbol: "USD", DecimalPlaces: models.DecimalPlacesTwo},
			jpy: {ID: jpy, Symbol: "JPY", DecimalPlaces: models.DecimalPlacesZero},
		},
		rates: []fakeRate{
			{usd, day("2024-01-01"), dec("1.00")},
			{usd, day("2024-03-01"), dec("1.05")},
		},
		accounts: map[int]models.Account{
			accBank:           {ID: accBank, AccountType: models.AccountTypeLiquidity, Reconcilable: &f},
			accOutstandingIn:  {ID: accOutstandingIn, AccountType: models.AccountTypeOther, Reconcilable: &t},
			accOutstandingOut: {ID: accOutstandingOut, AccountType: models.AccountTypeOther, Reconcilable: &t},
			accReceivable:     {ID: accReceivable, AccountType: models.AccountTypeReceivable, Reconcilable: &t},
			accPayable:        {ID: accPayable, AccountType: models.AccountTypePayable, Reconcilable: &t},
			accFxIncome:       {ID: accFxIncome, AccountType: models.AccountTypeIncome, Reconcilable: &f},
			accFxExpense:      {ID: accFxExpense, AccountType: models.AccountTypeExpense, Reconcilable: &f},
			accWriteoff:       {ID: accWriteoff, AccountType: models.AccountTypeExpense, Reconcilable: &f},
			accSuspense:       {ID: accSuspense, AccountType: models.AccountTypeOther, Reconcilable: &f},
			accRevenue:        {ID: accRevenue, AccountType: models.AccountTypeIncome, Reconcilable: &f},
		},
		journals: map[int]models.Journal{
			journalEur: {ID: journalEur, Name: "Bank EUR", Type: models.JournalTypeBank, DefaultAccountId: accBank,
				SuspenseAccountId: accSuspense, InboundOutstandingAccountId: accOutstandingIn, OutboundOutstandingAccountId: accOutstandingOut},
			journalUsd: {ID: journalUsd, Name: "Bank USD", Type: models.JournalTypeBank, CurrencyId: usd, DefaultAccountId: accBank,
				SuspenseAccountId: accSuspense, InboundOutstandingAccountId: accOutstandingIn, OutboundOutstandingAccountId: accOutstandingOut},
		},
		partners: map[int]models.Partner{
			partnerAcme:   {ID: partnerAcme, Name: "Acme", ReceivableAccountId: accReceivable, PayableAccountId: accPayable},
			partnerGlobex: {ID: partnerGlobex, Name: "Globex", ReceivableAccountId: accReceivable, PayableAccountId: accPayable},
		},
		statementLines:  map[int]models.StatementLine{},
		moves:           map[int]models.AccountMove{},
		amls:            map[int]models.AccountMoveLine{},
		payments:        map[int]models.Payment{},
		batches:         map[int]models.BatchPayment{},
		paymentInvoices: map[int][]int{},
		seq:             1000,
	}
	return h
}

func (h *fakeHost) nextId() int {
	h.seq++
	return h.seq
}

func (h *fakeHost) addStatementLine(journalId int, date string, amount string, partnerId int) int {
	id := h.nextId()
	h.statementLines[id] = models.StatementLine{
		ID: id, BusinessId: testBusinessId, JournalId: journalId, Date: day(date),
		PaymentRef: fmt.Sprintf("STMT/%d", id), PartnerId: partnerId, Amount: dec(amount),
	}
	return id
}

func (h *fakeHost) addBatch(name string, journalId, currencyId int, batchType models.PaymentType) int {
	id := h.nextId()
	h.batches[id] = models.BatchPayment{
		ID: id, BusinessId: testBusinessId, Name: name, Date: day("2024-03-05"),
		State: models.BatchPaymentStateSent, BatchType: batchType, JournalId: journalId, CurrencyId: currencyId,
	}
	return id
}

// addPostedPayment books an inbound payment: its liquidity line on the outstanding account stays open.
// It returns the payment id and the liquidity line id.
func (h *fakeHost) addPostedPayment(batchId, partnerId, currencyId int, amount, companyAmount string) (int, int) {
	paymentId := h.nextId()
	moveId := h.nextId()
	date := day("2024-01-15")
	h.moves[moveId] = models.AccountMove{ID: moveId, BusinessId: testBusinessId, JournalId: journalEur,
		Name: fmt.Sprintf("PAY/%d", paymentId), Date: date, State: models.MoveStatePosted, PaymentId: paymentId, CurrencyId: currencyId}
	liquidityId := h.nextId()
	h.amls[liquidityId] = models.AccountMoveLine{
		ID: liquidityId, BusinessId: testBusinessId, MoveId: moveId, AccountId: accOutstandingIn, PartnerId: partnerId,
		CurrencyId: currencyId, Name: fmt.Sprintf("PAY/%d", paymentId), Date: date,
		DisplayType: models.DisplayTypeLiquidity, ParentState: models.MoveStatePosted,
		AmountCurrency: dec(amount), Balance: dec(companyAmount),
		AmountResidualCurrency: dec(amount), AmountResidual: dec(companyAmount), PaymentId: paymentId,
	}
	counterpartId := h.nextId()
	h.amls[counterpartId] = models.AccountMoveLine{
		ID: counterpartId, BusinessId: testBusinessId, MoveId: moveId, AccountId: accReceivable, PartnerId: partnerId,
		CurrencyId: currencyId, Name: fmt.Sprintf("PAY/%d", paymentId), Date: date,
		DisplayType: models.DisplayTypeCounterpart, ParentState: models.MoveStatePosted,
		AmountCurrency: dec(amount).Neg(), Balance: dec(companyAmount).Neg(), Reconciled: true, PaymentId: paymentId,
	}
	h.payments[paymentId] = models.Payment{
		ID: paymentId, BusinessId: testBusinessId, Name: fmt.Sprintf("PAY/%d", paymentId),
		PaymentType: models.PaymentTypeInbound, PartnerId: partnerId, JournalId: journalEur, CurrencyId: currencyId,
		Amount: dec(amount), AmountSigned: dec(amount), AmountCompanySigned: dec(companyAmount), Date: date,
		State: models.PaymentStateInProcess, MoveId: moveId, BatchPaymentId: batchId, OutstandingAccountId: accOutstandingIn,
	}
	return paymentId, liquidityId
}

// addUnpostedPayment registers an in-process payment without entry settling the given invoices.
func (h *fakeHost) addUnpostedPayment(batchId, partnerId, currencyId int, amount, companyAmount string, invoiceMoveIds ...int) int {
	paymentId := h.nextId()
	h.payments[paymentId] = models.Payment{
		ID: paymentId, BusinessId: testBusinessId, Name: fmt.Sprintf("PAY/%d", paymentId),
		PaymentType: models.PaymentTypeInbound, PartnerId: partnerId, JournalId: journalEur, CurrencyId: currencyId,
		Amount: dec(amount), AmountSigned: dec(amount), AmountCompanySigned: dec(companyAmount), Date: day("2024-01-20"),
		State: models.PaymentStateInProcess, BatchPaymentId: batchId, OutstandingAccountId: accOutstandingIn,
	}
	h.paymentInvoices[paymentId] = invoiceMoveIds
	return paymentId
}

// addInvoice posts a customer invoice and returns its move id and receivable term line id.
func (h *fakeHost) addInvoice(partnerId, currencyId int, date, amount, companyAmount string) (int, int) {
	moveId := h.nextId()
	h.moves[moveId] = models.AccountMove{ID: moveId, BusinessId: testBusinessId, JournalId: journalEur,
		Name: fmt.Sprintf("INV/%d", moveId), Date: day(date), State: models.MoveStatePosted, PartnerId: partnerId, CurrencyId: currencyId}
	termId := h.nextId()
	h.amls[termId] = models.AccountMoveLine{
		ID: termId, BusinessId: testBusinessId, MoveId: moveId, AccountId: accReceivable, PartnerId: partnerId,
		CurrencyId: currencyId, Name: fmt.Sprintf("INV/%d", moveId), Date: day(date),
		DisplayType: models.DisplayTypePaymentTerm, ParentState: models.MoveStatePosted,
		AmountCurrency: dec(amount), Balance: dec(companyAmount),
		AmountResidualCurrency: dec(amount), AmountResidual: dec(companyAmount),
	}
	return moveId, termId
}

func (h *fakeHost) setPaymentState(paymentId int, state models.PaymentState) {
	p := h.payments[paymentId]
	p.State = state
	h.payments[paymentId] = p
}

func (h *fakeHost) joined(aml models.AccountMoveLine) models.AccountMoveLine {
	account := h.accounts[aml.AccountId]
	aml.AccountType = account.AccountType
	aml.AccountReconcilable = account.IsReconcilable()
	if p, ok := h.payments[aml.PaymentId]; ok {
		aml.PaymentState = p.State
		if b, ok := h.batches[p.BatchPaymentId]; ok {
			aml.BatchPaymentId = b.ID
			aml.BatchPaymentState = b.State
			aml.BatchJournalId = b.JournalId
		}
	}
	return aml
}

func (h *fakeHost) Business(context.Context) (*models.Business, error) {
	b := h.business
	return &b, nil
}

func (h *fakeHost) StatementLine(_ context.Context, id int) (*models.StatementLine, error) {
	st, ok := h.statementLines[id]
	if !ok {
		return nil, fmt.Errorf("statement line %d not found", id)
	}
	return &st, nil
}

func (h *fakeHost) Journal(_ context.Context, id int) (*models.Journal, error) {
	j, ok := h.journals[id]
	if !ok {
		return nil, fmt.Errorf("journal %d not found", id)
	}
	return &j, nil
}

func (h *fakeHost) Currency(_ context.Context, id int) (*models.Currency, error) {
	c, ok := h.currencies[id]
	if !ok {
		return nil, fmt.Errorf("currency %d not found", id)
	}
	return &c, nil
}

func (h *fakeHost) Account(_ context.Context, id int) (*models.Account, error) {
	a, ok := h.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d not found", id)
	}
	return &a, nil
}

func (h *fakeHost) Partner(_ context.Context, id int) (*models.Partner, error) {
	p, ok := h.partners[id]
	if !ok {
		return nil, fmt.Errorf("partner %d not found", id)
	}
	return &p, nil
}

func (h *fakeHost) Move(_ context.Context, id int) (*models.AccountMove, error) {
	m, ok := h.moves[id]
	if !ok {
		return nil, fmt.Errorf("move %d not found", id)
	}
	return &m, nil
}

func (h *fakeHost) rateOn(currencyId int, date time.Time) (decimal.Decimal, error) {
	if currencyId == h.business.BaseCurrencyId {
		return decimal.NewFromInt(1), nil
	}
	rate := decimal.Zero
	for _, r := range h.rates {
		if r.currencyId == currencyId && !r.from.After(date) {
			rate = r.rate
		}
	}
	if rate.IsZero() {
		return decimal.Zero, models.ErrCurrencyRateMissing
	}
	return rate, nil
}

func (h *fakeHost) Convert(_ context.Context, amount decimal.Decimal, from, to int, date time.Time) (decimal.Decimal, error) {
	target := h.currencies[to]
	if from == to {
		return target.Round(amount), nil
	}
	fromRate, err := h.rateOn(from, date)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := h.rateOn(to, date)
	if err != nil {
		return decimal.Zero, err
	}
	return models.CrossConvert(amount, fromRate, toRate, target)
}

func (h *fakeHost) SearchAmls(_ context.Context, q models.AmlQuery) ([]models.AccountMoveLine, error) {
	var ids []int
	for id := range h.amls {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var out []models.AccountMoveLine
	for _, id := range ids {
		if aml := h.joined(h.amls[id]); q.Matches(aml) {
			out = append(out, aml)
		}
	}
	return out, nil
}

func (h *fakeHost) BatchPayments(_ context.Context, ids []int) ([]models.BatchPayment, error) {
	var out []models.BatchPayment
	for _, id := range ids {
		b, ok := h.batches[id]
		if !ok {
			continue
		}
		b.Payments = nil
		for _, p := range h.payments {
			if p.BatchPaymentId == id {
				b.Payments = append(b.Payments, p)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func (h *fakeHost) SeekForLines(_ context.Context, payment models.Payment) (liquidity, counterparts, writeoffs []models.AccountMoveLine, err error) {
	var lines []models.AccountMoveLine
	for _, aml := range h.amls {
		if payment.MoveId != 0 && aml.MoveId == payment.MoveId {
			lines = append(lines, h.joined(aml))
		}
	}
	slices.SortFunc(lines, func(a, b models.AccountMoveLine) int { return a.ID - b.ID })
	liquidity, counterparts, writeoffs = payment.SeekForLines(lines)
	return
}

func (h *fakeHost) PaymentTermLines(_ context.Context, payment models.Payment) ([]models.AccountMoveLine, error) {
	var out []models.AccountMoveLine
	for _, aml := range h.amls {
		if slices.Contains(h.paymentInvoices[payment.ID], aml.MoveId) &&
			aml.DisplayType == models.DisplayTypePaymentTerm && !aml.Reconciled {
			out = append(out, aml)
		}
	}
	slices.SortFunc(out, func(a, b models.AccountMoveLine) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.ID - b.ID
	})
	return out, nil
}

func (h *fakeHost) ActionValidate(_ context.Context, payments []models.Payment) error {
	for _, p := range payments {
		h.setPaymentState(p.ID, models.PaymentStatePaid)
		h.validated = append(h.validated, p.ID)
	}
	return nil
}

var _ Host = (*fakeHost)(nil)
