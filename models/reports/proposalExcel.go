package reports

import (
	"fmt"
	"io"

	"github.com/mmdatafocus/bankrec_backend/bankrec"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const proposalSheet = "Proposal"

var proposalHeadings = []interface{}{"#", "Flag", "Label", "Account", "Partner", "Currency", "Amount Currency", "Balance"}

// ProposalNames resolves the ids printed in the export. Unknown ids print as "#<id>".
type ProposalNames struct {
	Accounts map[int]string
	Partners map[int]string
}

func nameOf(names map[int]string, id int) string {
	if id == 0 {
		return ""
	}
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

func ProposalFileName(s *bankrec.Session) string {
	return fmt.Sprintf("bankrec_%d_%s.xlsx", s.StatementLineId, s.Date.Format("20060102"))
}

// WriteProposal writes the session's lines as one xlsx sheet followed by the company-currency total.
func WriteProposal(w io.Writer, s *bankrec.Session, names ProposalNames) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", proposalSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(proposalSheet, "A1", &proposalHeadings); err != nil {
		return err
	}

	total := decimal.Zero
	rowNo := 2
	for _, l := range s.Lines {
		symbol := ""
		if cur, ok := s.Currencies[l.CurrencyId]; ok {
			symbol = cur.Symbol
		}
		row := []interface{}{
			l.Index,
			string(l.Flag),
			l.Name,
			nameOf(names.Accounts, l.AccountId),
			nameOf(names.Partners, l.PartnerId),
			symbol,
			l.AmountCurrency.InexactFloat64(),
			l.Balance.InexactFloat64(),
		}
		cell, err := excelize.CoordinatesToCellName(1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(proposalSheet, cell, &row); err != nil {
			return err
		}
		total = total.Add(l.Balance)
		rowNo++
	}

	if err := f.SetCellValue(proposalSheet, fmt.Sprintf("G%d", rowNo), "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(proposalSheet, fmt.Sprintf("H%d", rowNo), total.InexactFloat64()); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}
