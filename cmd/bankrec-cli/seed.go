package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type demoData struct {
	BusinessId      string `json:"business_id"`
	JournalId       int    `json:"journal_id"`
	PartnerId       int    `json:"partner_id"`
	BatchPaymentId  int    `json:"batch_payment_id"`
	PaymentIds      []int  `json:"payment_ids"`
	StatementLineId int    `json:"statement_line_id"`
}

// seedDemo books one customer with two open invoices paid by a two-payment batch deposit,
// and the bank statement line of that deposit, all in EUR.
func seedDemo(ctx context.Context, db *gorm.DB) (*demoData, error) {
	business := models.Business{
		ID:       uuid.New(),
		Name:     "Bank Reconciliation Demo",
		Timezone: "Europe/Berlin",
		IsActive: utils.NewTrue(),
	}
	ctx = utils.SetBusinessIdInContext(ctx, business.ID.String())
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	date := time.Now().UTC().Truncate(24 * time.Hour)

	demo := &demoData{BusinessId: business.ID.String()}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		eur := models.Currency{Symbol: "EUR", Name: "Euro", DecimalPlaces: models.DecimalPlacesTwo, IsActive: utils.NewTrue()}
		usd := models.Currency{Symbol: "USD", Name: "US Dollar", DecimalPlaces: models.DecimalPlacesTwo, IsActive: utils.NewTrue()}
		if err := tx.Create(&eur).Error; err != nil {
			return err
		}
		if err := tx.Create(&usd).Error; err != nil {
			return err
		}
		business.BaseCurrencyId = eur.ID
		if err := tx.Create(&business).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.CurrencyExchange{
			ForeignCurrencyId: usd.ID,
			ExchangeDate:      date,
			ExchangeRate:      decimal.RequireFromString("1.05"),
			Notes:             "demo rate",
		}).Error; err != nil {
			return err
		}

		accounts := map[string]*models.Account{
			"bank":        {Name: "Bank", Code: "101000", AccountType: models.AccountTypeLiquidity},
			"outstanding": {Name: "Outstanding Receipts", Code: "101300", AccountType: models.AccountTypeOther, Reconcilable: utils.NewTrue()},
			"receivable":  {Name: "Accounts Receivable", Code: "121000", AccountType: models.AccountTypeReceivable, Reconcilable: utils.NewTrue()},
			"suspense":    {Name: "Bank Suspense", Code: "101402", AccountType: models.AccountTypeOther},
			"sales":       {Name: "Sales", Code: "400000", AccountType: models.AccountTypeIncome},
			"gain":        {Name: "Foreign Exchange Gain", Code: "441000", AccountType: models.AccountTypeIncome},
			"loss":        {Name: "Foreign Exchange Loss", Code: "641000", AccountType: models.AccountTypeExpense},
			"writeoff":    {Name: "Bank Charges", Code: "626000", AccountType: models.AccountTypeExpense},
		}
		for _, key := range []string{"bank", "outstanding", "receivable", "suspense", "sales", "gain", "loss", "writeoff"} {
			a := accounts[key]
			if a.Reconcilable == nil {
				a.Reconcilable = utils.NewFalse()
			}
			a.IsActive = utils.NewTrue()
			if err := tx.Create(a).Error; err != nil {
				return fmt.Errorf("account %s: %w", key, err)
			}
		}
		if err := tx.Model(&business).Updates(map[string]interface{}{
			"income_exchange_account_id":  accounts["gain"].ID,
			"expense_exchange_account_id": accounts["loss"].ID,
			"writeoff_account_id":         accounts["writeoff"].ID,
		}).Error; err != nil {
			return err
		}

		journal := models.Journal{
			Name:                         "Bank EUR",
			Code:                         "BNK1",
			Type:                         models.JournalTypeBank,
			DefaultAccountId:             accounts["bank"].ID,
			SuspenseAccountId:            accounts["suspense"].ID,
			InboundOutstandingAccountId:  accounts["outstanding"].ID,
			OutboundOutstandingAccountId: accounts["outstanding"].ID,
		}
		if err := tx.Create(&journal).Error; err != nil {
			return err
		}
		sales := models.Journal{Name: "Customer Invoices", Code: "INV", Type: models.JournalTypeSale, DefaultAccountId: accounts["sales"].ID}
		if err := tx.Create(&sales).Error; err != nil {
			return err
		}
		partner := models.Partner{Name: "Azure Interior", ReceivableAccountId: accounts["receivable"].ID}
		if err := tx.Create(&partner).Error; err != nil {
			return err
		}
		demo.JournalId, demo.PartnerId = journal.ID, partner.ID

		batch := models.BatchPayment{
			Name:       "BATCH/IN/0001",
			Date:       date,
			State:      models.BatchPaymentStateSent,
			BatchType:  models.PaymentTypeInbound,
			JournalId:  journal.ID,
			CurrencyId: eur.ID,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		demo.BatchPaymentId = batch.ID

		for i, amount := range []decimal.Decimal{decimal.NewFromInt(600), decimal.NewFromInt(400)} {
			invoice, err := createInvoice(tx, sales, partner, accounts, eur.ID, amount, date, i+1)
			if err != nil {
				return err
			}
			payment, err := createPostedPayment(tx, journal, batch, partner, accounts, eur.ID, amount, date, i+1, invoice)
			if err != nil {
				return err
			}
			demo.PaymentIds = append(demo.PaymentIds, payment.ID)
		}

		st := models.StatementLine{
			JournalId:  journal.ID,
			Date:       date,
			PaymentRef: "DEPOSIT " + batch.Name,
			PartnerId:  partner.ID,
			Amount:     decimal.NewFromInt(1000),
		}
		if err := tx.Create(&st).Error; err != nil {
			return err
		}
		demo.StatementLineId = st.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return demo, nil
}

func createInvoice(tx *gorm.DB, journal models.Journal, partner models.Partner, accounts map[string]*models.Account, currencyId int, amount decimal.Decimal, date time.Time, seq int) (*models.AccountMove, error) {
	invoice := models.AccountMove{
		JournalId:  journal.ID,
		Name:       fmt.Sprintf("INV/%04d", seq),
		Date:       date,
		State:      models.MoveStatePosted,
		PartnerId:  partner.ID,
		CurrencyId: currencyId,
		Lines: []models.AccountMoveLine{
			{AccountId: accounts["receivable"].ID, DisplayType: models.DisplayTypePaymentTerm, AmountCurrency: amount, Balance: amount},
			{AccountId: accounts["sales"].ID, DisplayType: models.DisplayTypeProduct, AmountCurrency: amount.Neg(), Balance: amount.Neg()},
		},
	}
	fillLines(&invoice, accounts)
	if err := tx.Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// createPostedPayment books outstanding against receivable and settles the invoice's term line.
func createPostedPayment(tx *gorm.DB, journal models.Journal, batch models.BatchPayment, partner models.Partner, accounts map[string]*models.Account, currencyId int, amount decimal.Decimal, date time.Time, seq int, invoice *models.AccountMove) (*models.Payment, error) {
	payment := models.Payment{
		Name:                 fmt.Sprintf("PBNK1/%04d", seq),
		PaymentType:          models.PaymentTypeInbound,
		PartnerId:            partner.ID,
		JournalId:            journal.ID,
		CurrencyId:           currencyId,
		Amount:               amount,
		AmountSigned:         amount,
		AmountCompanySigned:  amount,
		Date:                 date,
		State:                models.PaymentStateInProcess,
		BatchPaymentId:       batch.ID,
		OutstandingAccountId: journal.OutstandingAccountId(models.PaymentTypeInbound),
		Memo:                 invoice.Name,
		Invoices:             []models.AccountMove{*invoice},
	}
	if err := tx.Omit("Invoices.*").Create(&payment).Error; err != nil {
		return nil, err
	}

	move := models.AccountMove{
		JournalId:  journal.ID,
		Name:       payment.Name,
		Ref:        invoice.Name,
		Date:       date,
		State:      models.MoveStatePosted,
		PartnerId:  partner.ID,
		CurrencyId: currencyId,
		PaymentId:  payment.ID,
		Lines: []models.AccountMoveLine{
			{AccountId: payment.OutstandingAccountId, DisplayType: models.DisplayTypeLiquidity, AmountCurrency: amount, Balance: amount, PaymentId: payment.ID},
			{AccountId: accounts["receivable"].ID, DisplayType: models.DisplayTypeCounterpart, AmountCurrency: amount.Neg(), Balance: amount.Neg(), PaymentId: payment.ID},
		},
	}
	fillLines(&move, accounts)
	if err := tx.Create(&move).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Update("move_id", move.ID).Error; err != nil {
		return nil, err
	}
	payment.MoveId = move.ID

	if _, err := models.ReconcileLines(tx, move.Lines[1].ID, []int{invoice.Lines[0].ID}); err != nil {
		return nil, err
	}
	return &payment, nil
}

// fillLines copies the header onto the lines and opens residuals on reconcilable accounts.
func fillLines(move *models.AccountMove, accounts map[string]*models.Account) {
	reconcilable := map[int]bool{}
	for _, a := range accounts {
		reconcilable[a.ID] = a.IsReconcilable()
	}
	for i := range move.Lines {
		l := &move.Lines[i]
		l.JournalId = move.JournalId
		l.PartnerId = move.PartnerId
		l.CurrencyId = move.CurrencyId
		l.Date = move.Date
		l.Name = move.Name
		l.ParentState = move.State
		l.OpenResidual(reconcilable[l.AccountId])
	}
}
