package bankrec

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/sirupsen/logrus"
)

type RemainderPolicy string

const (
	RemainderPolicyUnset      RemainderPolicy = ""
	RemainderPolicyReceivable RemainderPolicy = "receivable"
	RemainderPolicySuspense   RemainderPolicy = "suspense"
	RemainderPolicyWriteoff   RemainderPolicy = "writeoff"
)

func ParseRemainderPolicy(s string) (RemainderPolicy, error) {
	switch p := RemainderPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case RemainderPolicyUnset, RemainderPolicyReceivable, RemainderPolicySuspense, RemainderPolicyWriteoff:
		return p, nil
	default:
		return RemainderPolicyUnset, fmt.Errorf("unknown batch remainder policy %q", s)
	}
}

type Settings struct {
	// BatchRemainderPolicy places what is left of an unposted batch member after its invoices are settled.
	BatchRemainderPolicy RemainderPolicy
}

// Extension hooks into line preparation, exchange differences, validation and line keying.
// Hooks answer handled=false for lines they do not own so the next extension (and finally
// the base behaviour) gets a turn.
type Extension interface {
	Name() string
	PrepareRestoredLine(ctx context.Context, e *Engine, s *Session, values ProposalLine) (line *ProposalLine, handled bool, err error)
	ExchangeDiffValues(ctx context.Context, e *Engine, s *Session, line ProposalLine) (lines []ProposalLine, handled bool, err error)
	ValidationLinesVals(ctx context.Context, e *Engine, s *Session, v *Validation) error
	ExchangeDiffKey(line ProposalLine) (key string, handled bool)
}

// NopExtension can be embedded to implement only some hooks.
type NopExtension struct{}

func (NopExtension) Name() string { return "nop" }

func (NopExtension) PrepareRestoredLine(context.Context, *Engine, *Session, ProposalLine) (*ProposalLine, bool, error) {
	return nil, false, nil
}

func (NopExtension) ExchangeDiffValues(context.Context, *Engine, *Session, ProposalLine) ([]ProposalLine, bool, error) {
	return nil, false, nil
}

func (NopExtension) ValidationLinesVals(context.Context, *Engine, *Session, *Validation) error {
	return nil
}

func (NopExtension) ExchangeDiffKey(ProposalLine) (string, bool) { return "", false }

type Engine struct {
	host       Host
	settings   Settings
	logger     *logrus.Logger
	extensions []Extension
}

// NewEngine builds an engine with batch payment support registered ahead of extra extensions.
func NewEngine(host Host, settings Settings, logger *logrus.Logger, extensions ...Extension) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	exts := append([]Extension{BatchPaymentExtension{}}, extensions...)
	return &Engine{host: host, settings: settings, logger: logger, extensions: exts}
}

func (e *Engine) Host() Host { return e.host }

func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) log(s *Session) *logrus.Entry {
	return e.logger.WithFields(logrus.Fields{
		"module":            "bankrec",
		"session_id":        s.ID,
		"business_id":       s.BusinessId,
		"statement_line_id": s.StatementLineId,
	})
}

// NewSession opens the widget on a statement line: the liquidity line plus an
// auto-balance line for the full amount.
func (e *Engine) NewSession(ctx context.Context, id string, statementLineId int) (*Session, error) {
	st, err := e.host.StatementLine(ctx, statementLineId)
	if err != nil {
		return nil, err
	}
	if st.IsReconciled {
		return nil, conflictErrorf("statement line %d is already reconciled", st.ID)
	}
	journal, err := e.host.Journal(ctx, st.JournalId)
	if err != nil {
		return nil, err
	}
	business, err := e.host.Business(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	companyCurrencyId := business.BaseCurrencyId
	journalCurrencyId := journal.EffectiveCurrencyId(companyCurrencyId)
	s := &Session{
		ID:                       id,
		BusinessId:               st.BusinessId,
		StatementLineId:          st.ID,
		JournalId:                journal.ID,
		PartnerId:                st.PartnerId,
		PaymentRef:               st.PaymentRef,
		Date:                     st.Date,
		State:                    SessionStateOpen,
		CompanyCurrencyId:        companyCurrencyId,
		JournalCurrencyId:        journalCurrencyId,
		TransactionCurrencyId:    st.TransactionCurrencyId(journalCurrencyId),
		TransactionAmount:        st.TransactionAmount(),
		JournalAmount:            st.Amount,
		SuspenseAccountId:        journal.SuspenseAccountId,
		IncomeExchangeAccountId:  business.IncomeExchangeAccountId,
		ExpenseExchangeAccountId: business.ExpenseExchangeAccountId,
		WriteoffAccountId:        business.WriteoffAccountId,
		Currencies:               map[int]models.Currency{},
	}
	for _, currencyId := range []int{companyCurrencyId, journalCurrencyId, s.TransactionCurrencyId} {
		if _, err := e.currency(ctx, s, currencyId); err != nil {
			return nil, err
		}
	}
	s.CompanyAmount = st.Amount
	if journalCurrencyId != companyCurrencyId {
		s.CompanyAmount, err = e.host.Convert(ctx, st.Amount, journalCurrencyId, companyCurrencyId, st.Date)
		if err != nil {
			return nil, err
		}
	}

	s.Lines = []ProposalLine{{
		ID:                   liquidityLineId,
		Flag:                 FlagLiquidity,
		AccountId:            journal.DefaultAccountId,
		PartnerId:            st.PartnerId,
		CurrencyId:           journalCurrencyId,
		SourceAmountCurrency: st.Amount,
		SourceBalance:        s.CompanyAmount,
		AmountCurrency:       st.Amount,
		Balance:              s.CompanyAmount,
		Name:                 st.PaymentRef,
		Date:                 st.Date,
	}}
	if err := e.refresh(ctx, s, false); err != nil {
		return nil, err
	}
	return s, nil
}

// currency returns the snapshot kept on the session, loading it on first use.
func (e *Engine) currency(ctx context.Context, s *Session, id int) (models.Currency, error) {
	if c, ok := s.Currencies[id]; ok {
		return c, nil
	}
	c, err := e.host.Currency(ctx, id)
	if err != nil {
		return models.Currency{}, err
	}
	if s.Currencies == nil {
		s.Currencies = map[int]models.Currency{}
	}
	s.Currencies[id] = *c
	return *c, nil
}

// apply runs fn on a staging copy, recomputes derived state and commits only on success.
// fn reports whether partial matching must run again.
func (e *Engine) apply(ctx context.Context, s *Session, fn func(st *Session) (bool, error)) error {
	if s.State != SessionStateOpen {
		return validationErrorf("session %s is %s", s.ID, s.State)
	}
	st := s.clone()
	rerunPartial, err := fn(st)
	if err != nil {
		return err
	}
	if err := e.refresh(ctx, st, rerunPartial); err != nil {
		return err
	}
	*s = *st
	return nil
}

func (e *Engine) refresh(ctx context.Context, st *Session, rerunPartial bool) error {
	if rerunPartial {
		e.resetPartialLines(st)
	}
	if err := e.recomputeExchangeDiffs(ctx, st); err != nil {
		return err
	}
	if rerunPartial {
		applied, err := e.checkApplyPartialMatching(ctx, st)
		if err != nil {
			return err
		}
		if applied {
			if err := e.recomputeExchangeDiffs(ctx, st); err != nil {
				return err
			}
		}
	}
	if err := e.addAutoBalanceLine(ctx, st); err != nil {
		return err
	}
	if err := e.computeSelected(ctx, st); err != nil {
		return err
	}
	st.reindex()
	return nil
}
