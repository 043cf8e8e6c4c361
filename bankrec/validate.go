package bankrec

import (
	"context"

	"github.com/shopspring/decimal"
)

// LineCommand is one journal item the validated entry will contain.
type LineCommand struct {
	Flag                 Flag            `json:"flag"`
	AccountId            int             `json:"account_id"`
	PartnerId            int             `json:"partner_id,omitempty"`
	CurrencyId           int             `json:"currency_id"`
	AmountCurrency       decimal.Decimal `json:"amount_currency"`
	Balance              decimal.Decimal `json:"balance"`
	Name                 string          `json:"name"`
	SourceAmlId          int             `json:"source_aml_id,omitempty"`
	SourceBatchPaymentId int             `json:"source_batch_payment_id,omitempty"`
}

// ReconcileInstruction pairs a command with the existing entries it settles.
type ReconcileInstruction struct {
	CommandIndex int   `json:"command_index"`
	AmlIds       []int `json:"aml_ids"`
}

// Validation accumulates what validating a session produces. Commands are ordered:
// the liquidity line first, then extension output, then the remaining proposal lines.
type Validation struct {
	LineCommands []LineCommand `json:"line_commands"`

	// AmlToExchangeDiff maps a source entry to the commands holding its exchange difference.
	AmlToExchangeDiff   map[int][]int          `json:"aml_to_exchange_diff"`
	ToReconcile         []ReconcileInstruction `json:"to_reconcile"`
	ValidatedPaymentIds []int                  `json:"validated_payment_ids"`

	// SettledBatchPaymentIds lists batches at least one member of which was settled.
	SettledBatchPaymentIds []int `json:"settled_batch_payment_ids"`
}

func (v *Validation) add(cmd LineCommand) int {
	v.LineCommands = append(v.LineCommands, cmd)
	return len(v.LineCommands) - 1
}

func (v *Validation) reconcile(idx int, amlIds ...int) {
	if len(amlIds) == 0 {
		return
	}
	v.ToReconcile = append(v.ToReconcile, ReconcileInstruction{CommandIndex: idx, AmlIds: amlIds})
}

func commandFromLine(l ProposalLine) LineCommand {
	return LineCommand{
		Flag:                 l.Flag,
		AccountId:            l.AccountId,
		PartnerId:            l.PartnerId,
		CurrencyId:           l.CurrencyId,
		AmountCurrency:       l.AmountCurrency,
		Balance:              l.Balance,
		Name:                 l.Name,
		SourceAmlId:          l.SourceAmlId,
		SourceBatchPaymentId: l.SourceBatchPaymentId,
	}
}

// Validate turns the proposal into line commands and reconciliation instructions. It calls
// Host.ActionValidate for unposted batch members, so the host must be transactional. The
// session itself is not changed; the caller marks it validated once the entry is posted.
func (e *Engine) Validate(ctx context.Context, s *Session) (*Validation, error) {
	if s.State != SessionStateOpen {
		return nil, validationErrorf("session %s is %s", s.ID, s.State)
	}
	st := s.clone()
	liquidity, ok := st.liquidityLine()
	if !ok {
		return nil, hostContractErrorf("session %s has no liquidity line", s.ID)
	}

	v := &Validation{AmlToExchangeDiff: map[int][]int{}}
	v.add(commandFromLine(liquidity))
	for _, ext := range e.extensions {
		if err := ext.ValidationLinesVals(ctx, e, st, v); err != nil {
			return nil, err
		}
	}
	if err := e.validationLinesVals(st, v); err != nil {
		return nil, err
	}
	if err := e.closeBalance(st, v); err != nil {
		return nil, err
	}
	e.log(s).WithField("commands", len(v.LineCommands)).Info("proposal validated")
	return v, nil
}

func (e *Engine) validationLinesVals(s *Session, v *Validation) error {
	for _, l := range s.Lines {
		switch l.Flag {
		case FlagLiquidity:
			continue
		case FlagNewAml:
			idx := v.add(commandFromLine(l))
			v.reconcile(idx, l.SourceAmlId)
		case FlagExchangeDiff:
			idx := v.add(commandFromLine(l))
			if l.SourceAmlId != 0 {
				v.AmlToExchangeDiff[l.SourceAmlId] = append(v.AmlToExchangeDiff[l.SourceAmlId], idx)
			}
		case FlagAutoBalance, FlagManual:
			v.add(commandFromLine(l))
		default:
			return hostContractErrorf("no validation handler for %s line %s", l.Flag, l.ID)
		}
	}
	return nil
}

// closeBalance pushes any company-currency residue left by extension output into the
// auto-balance command, then checks the entry balances.
func (e *Engine) closeBalance(s *Session, v *Validation) error {
	company := s.company()
	total := decimal.Zero
	for _, cmd := range v.LineCommands {
		total = total.Add(cmd.Balance)
	}
	if !company.IsZero(total) {
		idx := -1
		for i, cmd := range v.LineCommands {
			if cmd.Flag == FlagAutoBalance {
				idx = i
			}
		}
		if idx < 0 {
			if s.SuspenseAccountId == 0 {
				return validationErrorf("journal %d has no suspense account", s.JournalId)
			}
			idx = v.add(LineCommand{
				Flag:       FlagAutoBalance,
				AccountId:  s.SuspenseAccountId,
				PartnerId:  s.PartnerId,
				CurrencyId: s.CompanyCurrencyId,
				Name:       s.PaymentRef,
			})
		}
		cmd := &v.LineCommands[idx]
		cmd.Balance = company.Round(cmd.Balance.Sub(total))
		if cmd.CurrencyId == s.CompanyCurrencyId {
			cmd.AmountCurrency = cmd.Balance
		}
		e.log(s).WithField("residue", total.String()).Warn("validation residue booked on the auto-balance line")
	}

	total = decimal.Zero
	for _, cmd := range v.LineCommands {
		total = total.Add(cmd.Balance)
	}
	if !company.IsZero(total) {
		return validationErrorf("entry is unbalanced by %s", total.String())
	}

	currencyId := v.LineCommands[0].CurrencyId
	amountCurrency := decimal.Zero
	for _, cmd := range v.LineCommands {
		if cmd.CurrencyId != currencyId {
			return nil
		}
		amountCurrency = amountCurrency.Add(cmd.AmountCurrency)
	}
	if cur, ok := s.Currencies[currencyId]; ok && !cur.IsZero(amountCurrency) {
		return validationErrorf("entry is unbalanced by %s in %s", amountCurrency.String(), cur.Symbol)
	}
	return nil
}
