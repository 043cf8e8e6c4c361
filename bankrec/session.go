package bankrec

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/shopspring/decimal"
)

type SessionState string

const (
	SessionStateOpen      SessionState = "open"
	SessionStateValidated SessionState = "validated"
)

// Session is the widget state for one statement line. It is plain data so it can be
// stored between requests; all behaviour lives on Engine.
type Session struct {
	ID              string       `json:"id"`
	BusinessId      string       `json:"business_id"`
	StatementLineId int          `json:"statement_line_id"`
	JournalId       int          `json:"journal_id"`
	PartnerId       int          `json:"partner_id,omitempty"`
	PaymentRef      string       `json:"payment_ref"`
	Date            time.Time    `json:"date"`
	State           SessionState `json:"state"`

	CompanyCurrencyId     int `json:"company_currency_id"`
	JournalCurrencyId     int `json:"journal_currency_id"`
	TransactionCurrencyId int `json:"transaction_currency_id"`

	// The statement line expressed in each of the three currencies.
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	JournalAmount     decimal.Decimal `json:"journal_amount"`
	CompanyAmount     decimal.Decimal `json:"company_amount"`

	SuspenseAccountId        int `json:"suspense_account_id"`
	IncomeExchangeAccountId  int `json:"income_exchange_account_id"`
	ExpenseExchangeAccountId int `json:"expense_exchange_account_id"`
	WriteoffAccountId        int `json:"writeoff_account_id"`

	Currencies map[int]models.Currency `json:"currencies"`
	Lines      []ProposalLine          `json:"lines"`
	NextSeq    int                     `json:"next_seq"`

	SelectedBatchPaymentIds []int `json:"selected_batch_payment_ids"`
	SelectedAmlIds          []int `json:"selected_aml_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Currencies = maps.Clone(s.Currencies)
	c.Lines = slices.Clone(s.Lines)
	c.SelectedBatchPaymentIds = slices.Clone(s.SelectedBatchPaymentIds)
	c.SelectedAmlIds = slices.Clone(s.SelectedAmlIds)
	return &c
}

func (s *Session) company() models.Currency {
	return s.Currencies[s.CompanyCurrencyId]
}

// Line returns the line with the given id.
func (s *Session) Line(id string) (ProposalLine, bool) {
	for _, l := range s.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return ProposalLine{}, false
}

// LineAt returns the line at the given form index.
func (s *Session) LineAt(index int) (ProposalLine, bool) {
	for _, l := range s.Lines {
		if l.Index == index {
			return l, true
		}
	}
	return ProposalLine{}, false
}

func (s *Session) linesWith(flags ...Flag) []ProposalLine {
	var out []ProposalLine
	for _, l := range s.Lines {
		if slices.Contains(flags, l.Flag) {
			out = append(out, l)
		}
	}
	return out
}

func (s *Session) liquidityLine() (ProposalLine, bool) {
	lines := s.linesWith(FlagLiquidity)
	if len(lines) == 0 {
		return ProposalLine{}, false
	}
	return lines[0], true
}

func (s *Session) hasAmlLine(amlId int) bool {
	for _, l := range s.Lines {
		if l.Flag == FlagNewAml && l.SourceAmlId == amlId {
			return true
		}
	}
	return false
}

func (s *Session) batchLine(batchId int) (ProposalLine, bool) {
	for _, l := range s.Lines {
		if l.Flag == FlagNewBatch && l.SourceBatchPaymentId == batchId {
			return l, true
		}
	}
	return ProposalLine{}, false
}

func (s *Session) removeWhere(pred func(ProposalLine) bool) []ProposalLine {
	var removed []ProposalLine
	s.Lines = slices.DeleteFunc(s.Lines, func(l ProposalLine) bool {
		if pred(l) {
			removed = append(removed, l)
			return true
		}
		return false
	})
	return removed
}

// appendLine assigns a fresh id unless the line carries an unused one.
func (s *Session) appendLine(l ProposalLine) ProposalLine {
	if l.ID == "" || isReservedLineId(l.ID) || s.hasLineId(l.ID) {
		l.ID = s.newLineId()
	} else if n, ok := lineSeq(l.ID); ok && n > s.NextSeq {
		s.NextSeq = n
	}
	s.Lines = append(s.Lines, l)
	return l
}

func (s *Session) newLineId() string {
	s.NextSeq++
	return fmt.Sprintf("L%d", s.NextSeq)
}

func (s *Session) hasLineId(id string) bool {
	_, ok := s.Line(id)
	return ok
}

// isReservedLineId reports ids the engine derives itself.
func isReservedLineId(id string) bool {
	return id == liquidityLineId || id == autoBalanceLineId || strings.HasPrefix(id, "X-")
}

func lineSeq(id string) (int, bool) {
	if !strings.HasPrefix(id, "L") {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	return n, err == nil
}

func (s *Session) reindex() {
	for i := range s.Lines {
		s.Lines[i].Index = i
	}
}
