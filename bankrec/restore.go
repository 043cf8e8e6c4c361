package bankrec

import (
	"context"
	"errors"

	"github.com/mmdatafocus/bankrec_backend/models"
)

type CommandOp string

const (
	CommandCreate CommandOp = "create"
	CommandUpdate CommandOp = "update"
	CommandUnlink CommandOp = "unlink"
)

// Command is one step of a saved proposal. Values is only read by create and update.
type Command struct {
	Op     CommandOp    `json:"op" validate:"required,oneof=create update unlink"`
	LineId string       `json:"line_id,omitempty"`
	Values ProposalLine `json:"values"`
}

// Restore replays saved commands onto a fresh session. Lines are rebuilt from live records,
// so amounts saved with the commands are ignored and entries that are gone or settled are skipped.
func (e *Engine) Restore(ctx context.Context, sessionId string, statementLineId int, commands []Command) (*Session, error) {
	s, err := e.NewSession(ctx, sessionId, statementLineId)
	if err != nil {
		return nil, err
	}
	err = e.apply(ctx, s, func(st *Session) (bool, error) {
		for _, cmd := range commands {
			switch cmd.Op {
			case CommandCreate:
				line, err := e.prepareRestoredLine(ctx, st, cmd.Values)
				if err != nil {
					return false, err
				}
				if line == nil {
					continue
				}
				if line.ID == "" {
					line.ID = cmd.LineId
				}
				if line.ID == "" {
					line.ID = cmd.Values.ID
				}
				st.appendLine(*line)
			case CommandUpdate:
				line, ok := st.Line(cmd.LineId)
				if !ok || line.Flag == FlagExchangeDiff || line.Flag == FlagLiquidity {
					continue
				}
				err := e.editLineAmount(ctx, st, cmd.LineId, cmd.Values.AmountCurrency)
				if errors.Is(err, ErrValidation) {
					e.log(st).WithError(err).WithField("line_id", cmd.LineId).Info("saved edit no longer applies; skipped")
					continue
				}
				if err != nil {
					return false, err
				}
			case CommandUnlink:
				line, ok := st.Line(cmd.LineId)
				if !ok || line.Flag == FlagExchangeDiff || line.Flag == FlagLiquidity {
					continue
				}
				if _, err := e.removeLines(st, []string{cmd.LineId}); err != nil {
					return false, err
				}
			default:
				return false, validationErrorf("unknown command %q", cmd.Op)
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// prepareRestoredLine returns nil for lines that are regenerated or no longer apply.
func (e *Engine) prepareRestoredLine(ctx context.Context, s *Session, values ProposalLine) (*ProposalLine, error) {
	for _, ext := range e.extensions {
		line, ok, err := ext.PrepareRestoredLine(ctx, e, s, values)
		if ok || err != nil {
			return line, err
		}
	}

	switch values.Flag {
	case FlagNewAml:
		return e.restoreAmlLine(ctx, s, values)
	case FlagManual:
		if values.AccountId == 0 {
			return nil, nil
		}
		line, err := e.prepareManualLine(ctx, s, ManualLineInput{
			AccountId:      values.AccountId,
			PartnerId:      values.PartnerId,
			AmountCurrency: values.AmountCurrency,
			Name:           values.Name,
		})
		if err != nil {
			return nil, err
		}
		return &line, nil
	default:
		// liquidity, exchange_diff and auto_balance are regenerated.
		return nil, nil
	}
}

func (e *Engine) restoreAmlLine(ctx context.Context, s *Session, values ProposalLine) (*ProposalLine, error) {
	if s.hasAmlLine(values.SourceAmlId) {
		return nil, nil
	}
	q := models.StatementLine{ID: s.StatementLineId, BusinessId: s.BusinessId}.DefaultAmlsMatchingQuery()
	q.Ids = []int{values.SourceAmlId}
	amls, err := e.host.SearchAmls(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(amls) == 0 {
		e.log(s).WithField("aml_id", values.SourceAmlId).Info("journal item no longer open; dropped from restored proposal")
		return nil, nil
	}
	covered, err := e.amlsCoveredByBatchLines(ctx, s)
	if err != nil || covered[values.SourceAmlId] {
		return nil, err
	}
	line, err := e.prepareAmlLine(ctx, s, amls[0], values.AllowPartial)
	if err != nil {
		return nil, err
	}
	if values.ManuallyEdited {
		cur := s.Currencies[line.CurrencyId]
		edited := values.AmountCurrency
		if edited.Sign() == line.SourceAmountCurrency.Sign() && cur.CompareAmounts(edited.Abs(), line.SourceAmountCurrency.Abs()) <= 0 && !cur.IsZero(edited) {
			line.AmountCurrency = cur.Round(edited)
			line.Balance = s.company().Round(line.SourceBalance.Mul(edited).Div(line.SourceAmountCurrency))
			line.ManuallyEdited = true
			line.Partial = cur.CompareAmounts(edited.Abs(), line.SourceAmountCurrency.Abs()) < 0
		}
	}
	return &line, nil
}
