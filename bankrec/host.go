package bankrec

import (
	"context"
	"time"

	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/shopspring/decimal"
)

// Host is everything the widget needs from the ledger. One Host serves one business;
// implementations that write (ActionValidate) must run inside the caller's transaction.
type Host interface {
	Business(ctx context.Context) (*models.Business, error)
	StatementLine(ctx context.Context, id int) (*models.StatementLine, error)
	Journal(ctx context.Context, id int) (*models.Journal, error)
	Currency(ctx context.Context, id int) (*models.Currency, error)
	Account(ctx context.Context, id int) (*models.Account, error)
	Partner(ctx context.Context, id int) (*models.Partner, error)
	Move(ctx context.Context, id int) (*models.AccountMove, error)

	// Convert converts at date and rounds to the target currency.
	Convert(ctx context.Context, amount decimal.Decimal, fromCurrencyId, toCurrencyId int, date time.Time) (decimal.Decimal, error)

	// SearchAmls returns matching lines ordered by id, with the joined payment and batch fields set.
	SearchAmls(ctx context.Context, q models.AmlQuery) ([]models.AccountMoveLine, error)

	// BatchPayments returns the batches that exist among ids, members preloaded.
	BatchPayments(ctx context.Context, ids []int) ([]models.BatchPayment, error)
	SeekForLines(ctx context.Context, payment models.Payment) (liquidity, counterparts, writeoffs []models.AccountMoveLine, err error)

	// PaymentTermLines returns the open term lines of the invoices a payment settles, oldest first.
	PaymentTermLines(ctx context.Context, payment models.Payment) ([]models.AccountMoveLine, error)
	ActionValidate(ctx context.Context, payments []models.Payment) error
}
