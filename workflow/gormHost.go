package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/bankrec_backend/bankrec"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/mmdatafocus/bankrec_backend/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// GormHost serves the widget from the MySQL ledger of one business. Reads go through
// the tenant guard, so db must carry a context with the business id or the explicit
// filters below are the only scope.
type GormHost struct {
	db         *gorm.DB
	businessId string
	business   *models.Business
}

var _ bankrec.Host = (*GormHost)(nil)

func NewGormHost(db *gorm.DB, businessId string) *GormHost {
	return &GormHost{db: db, businessId: businessId}
}

func (h *GormHost) tx(ctx context.Context) *gorm.DB {
	return h.db.WithContext(utils.SetBusinessIdInContext(ctx, h.businessId))
}

func (h *GormHost) Business(ctx context.Context) (*models.Business, error) {
	if h.business != nil {
		return h.business, nil
	}
	business, err := models.GetBusiness(h.tx(ctx), h.businessId)
	if err != nil {
		return nil, fmt.Errorf("business %s: %w", h.businessId, err)
	}
	h.business = business
	return business, nil
}

func (h *GormHost) StatementLine(ctx context.Context, id int) (*models.StatementLine, error) {
	st, err := models.GetStatementLine(h.tx(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("statement line %d: %w", id, err)
	}
	return st, nil
}

func (h *GormHost) Journal(ctx context.Context, id int) (*models.Journal, error) {
	journal, err := models.GetJournal(h.tx(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("journal %d: %w", id, err)
	}
	return journal, nil
}

func (h *GormHost) Currency(ctx context.Context, id int) (*models.Currency, error) {
	currency, err := models.GetCurrency(h.tx(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("currency %d: %w", id, err)
	}
	return currency, nil
}

func (h *GormHost) Account(ctx context.Context, id int) (*models.Account, error) {
	account, err := models.GetAccount(h.tx(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", id, err)
	}
	return account, nil
}

func (h *GormHost) Partner(ctx context.Context, id int) (*models.Partner, error) {
	partner, err := models.GetPartner(h.tx(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("partner %d: %w", id, err)
	}
	return partner, nil
}

func (h *GormHost) Move(ctx context.Context, id int) (*models.AccountMove, error) {
	move, err := models.GetAccountMove(h.tx(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("move %d: %w", id, err)
	}
	return move, nil
}

func (h *GormHost) Convert(ctx context.Context, amount decimal.Decimal, fromCurrencyId, toCurrencyId int, date time.Time) (decimal.Decimal, error) {
	business, err := h.Business(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	from, err := h.Currency(ctx, fromCurrencyId)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := h.Currency(ctx, toCurrencyId)
	if err != nil {
		return decimal.Zero, err
	}
	return models.ConvertAmount(h.tx(ctx), business, amount, *from, *to, date)
}

func (h *GormHost) SearchAmls(ctx context.Context, q models.AmlQuery) ([]models.AccountMoveLine, error) {
	ctx, span := tracer.Start(ctx, "bankrec.search_amls", trace.WithAttributes(
		attribute.String("business_id", h.businessId),
		attribute.IntSlice("batch_payment_ids", q.BatchPaymentIds),
	))
	defer span.End()
	q.BusinessId = h.businessId
	amls, err := models.SearchAmls(h.tx(ctx), q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(amls)))
	return amls, nil
}

func (h *GormHost) BatchPayments(ctx context.Context, ids []int) ([]models.BatchPayment, error) {
	return models.GetBatchPayments(h.tx(ctx), ids)
}

func (h *GormHost) SeekForLines(ctx context.Context, payment models.Payment) (liquidity, counterparts, writeoffs []models.AccountMoveLine, err error) {
	lines, err := models.GetPaymentMoveLines(h.tx(ctx), payment)
	if err != nil {
		return nil, nil, nil, err
	}
	liquidity, counterparts, writeoffs = payment.SeekForLines(lines)
	return liquidity, counterparts, writeoffs, nil
}

func (h *GormHost) PaymentTermLines(ctx context.Context, payment models.Payment) ([]models.AccountMoveLine, error) {
	return models.GetPaymentTermLines(h.tx(ctx), payment)
}

// ActionValidate writes; h.db must be the validation transaction.
func (h *GormHost) ActionValidate(ctx context.Context, payments []models.Payment) error {
	tx := h.tx(ctx)
	for i := range payments {
		if err := models.ActionValidatePayment(tx, &payments[i]); err != nil {
			return err
		}
	}
	return nil
}
