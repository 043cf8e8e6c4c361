package bankrec

import (
	"time"

	"github.com/shopspring/decimal"
)

type Flag string

const (
	FlagLiquidity    Flag = "liquidity"
	FlagNewAml       Flag = "new_aml"
	FlagNewBatch     Flag = "new_batch"
	FlagExchangeDiff Flag = "exchange_diff"
	FlagAutoBalance  Flag = "auto_balance"
	FlagManual       Flag = "manual"
)

// IsDerived reports flags regenerated on every recomputation.
func (f Flag) IsDerived() bool {
	return f == FlagExchangeDiff || f == FlagAutoBalance
}

const (
	liquidityLineId   = "LIQ"
	autoBalanceLineId = "AB"
)

// ProposalLine is one line of the widget's proposal. SourceAmountCurrency and SourceBalance
// freeze what the source was worth when added; AmountCurrency and Balance are what will be posted.
type ProposalLine struct {
	ID                   string          `json:"id"`
	Index                int             `json:"index"`
	Flag                 Flag            `json:"flag"`
	SourceAmlId          int             `json:"source_aml_id,omitempty"`
	SourceBatchPaymentId int             `json:"source_batch_payment_id,omitempty"`
	SourceAmountCurrency decimal.Decimal `json:"source_amount_currency"`
	SourceBalance        decimal.Decimal `json:"source_balance"`
	AmountCurrency       decimal.Decimal `json:"amount_currency"`
	Balance              decimal.Decimal `json:"balance"`
	AccountId            int             `json:"account_id"`
	PartnerId            int             `json:"partner_id,omitempty"`
	CurrencyId           int             `json:"currency_id"`
	Name                 string          `json:"name"`
	Date                 time.Time       `json:"date"`
	AllowPartial         bool            `json:"allow_partial,omitempty"`
	ManuallyEdited       bool            `json:"manually_edited,omitempty"`
	Partial              bool            `json:"partial,omitempty"`
}
