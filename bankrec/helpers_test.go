package bankrec

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newTestEngine(h *fakeHost, policy RemainderPolicy) *Engine {
	return NewEngine(h, Settings{BatchRemainderPolicy: policy}, nil)
}

func openSession(t *testing.T, e *Engine, statementLineId int) *Session {
	t.Helper()
	s, err := e.NewSession(ctx, fmt.Sprintf("sess-%d", statementLineId), statementLineId)
	require.NoError(t, err)
	return s
}

// snapshot renders lines in a form that compares decimals by value.
func snapshot(s *Session) []string {
	out := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, fmt.Sprintf("%d %s %s aml=%d batch=%d acc=%d cur=%d %s/%s",
			l.Index, l.ID, l.Flag, l.SourceAmlId, l.SourceBatchPaymentId, l.AccountId, l.CurrencyId,
			l.AmountCurrency.String(), l.Balance.String()))
	}
	return out
}

func flags(s *Session) []Flag {
	out := make([]Flag, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, l.Flag)
	}
	return out
}

func onlyLine(t *testing.T, s *Session, f Flag) ProposalLine {
	t.Helper()
	lines := s.linesWith(f)
	require.Len(t, lines, 1, "expected exactly one %s line", f)
	return lines[0]
}

func assertBalanced(t *testing.T, s *Session) {
	t.Helper()
	total := decimal.Zero
	perCurrency := map[int]decimal.Decimal{}
	for _, l := range s.Lines {
		total = total.Add(l.Balance)
		perCurrency[l.CurrencyId] = perCurrency[l.CurrencyId].Add(l.AmountCurrency)
	}
	require.True(t, total.IsZero(), "balances sum to %s", total)
	for currencyId, sum := range perCurrency {
		require.True(t, s.Currencies[currencyId].IsZero(sum), "currency %d sums to %s", currencyId, sum)
	}
}

func lineIdsOfBatch(s *Session, batchId int) []string {
	var ids []string
	for _, l := range s.Lines {
		if (l.Flag == FlagNewAml || l.Flag == FlagNewBatch) && l.SourceBatchPaymentId == batchId {
			ids = append(ids, l.ID)
		}
	}
	return ids
}
