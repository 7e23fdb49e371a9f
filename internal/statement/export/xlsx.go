package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/finverse/finverse/internal/statement"
)

// Workbook sheet names.
const (
	SheetSummary  = "Summary"
	SheetEarnings = "Earnings"
	SheetPayouts  = "Payouts"
)

// WriteXLSX serialises the statement as a workbook with one sheet per section.
func WriteXLSX(w io.Writer, stmt *statement.Statement) error {
	if stmt == nil {
		return ErrNoStatementData
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	rows := [][]any{
		{"Financial Statement"},
		{"Entity", stmt.Entity.Name},
		{"Period", stmt.Period.Label},
		{"Date Range", stmt.Period.DateRange()},
		{},
	}
	for _, l := range stmt.Summary.Lines() {
		rows = append(rows, []any{l.Label, l.Amount.Round(2).InexactFloat64()})
	}
	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetEarnings); err != nil {
		return err
	}
	rows = [][]any{toAny(earningsHeader)}
	for _, item := range stmt.Earnings {
		rows = append(rows, []any{
			formatDate(item.Date),
			item.Description,
			string(item.Type),
			item.GrossAmount.Round(2).InexactFloat64(),
			item.Commission.Round(2).InexactFloat64(),
			item.NetAmount.Round(2).InexactFloat64(),
		})
	}
	if err := writeRows(f, SheetEarnings, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetPayouts); err != nil {
		return err
	}
	rows = [][]any{toAny(payoutsHeader)}
	for _, p := range stmt.Payouts {
		processed := ""
		if p.ProcessedDate != nil {
			processed = formatDate(*p.ProcessedDate)
		}
		rows = append(rows, []any{
			formatDate(p.CreatedDate),
			p.RequestedAmount.Round(2).InexactFloat64(),
			string(p.Status),
			p.PayoutMethod,
			p.TransactionReference,
			processed,
		})
	}
	if err := writeRows(f, SheetPayouts, rows); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
