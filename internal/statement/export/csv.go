package export

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/finverse/finverse/internal/statement"
)

var (
	// ErrNoStatementData is returned when a formatter is given no statement.
	ErrNoStatementData = errors.New("export: no statement data")
	// ErrMalformedCSV indicates a CSV document without a complete SUMMARY block.
	ErrMalformedCSV = errors.New("export: malformed statement csv")
)

const (
	sectionSummary  = "SUMMARY"
	sectionEarnings = "EARNINGS"
	sectionPayouts  = "PAYOUTS"
	dateLayout      = "2006-01-02"
)

var (
	earningsHeader = []string{"Date", "Description", "Type", "Gross Amount", "Commission", "Net Amount"}
	payoutsHeader  = []string{"Requested Date", "Amount", "Status", "Method", "Reference", "Processed Date"}
)

// WriteCSV serialises the statement as sectioned CSV text. Fields are joined with
// commas as-is; descriptions containing commas or quotes are not escaped.
func WriteCSV(w io.Writer, stmt *statement.Statement) error {
	if stmt == nil {
		return ErrNoStatementData
	}
	var buf bytes.Buffer
	line := func(fields ...string) {
		buf.WriteString(strings.Join(fields, ","))
		buf.WriteByte('\n')
	}

	line("Financial Statement")
	line("Entity", stmt.Entity.Name)
	line("Period", stmt.Period.Label)
	line("Date Range", stmt.Period.DateRange())
	line()

	line(sectionSummary)
	for _, l := range stmt.Summary.Lines() {
		line(l.Label, Money(l.Amount))
	}
	line()

	line(sectionEarnings)
	line(earningsHeader...)
	for _, item := range stmt.Earnings {
		line(
			formatDate(item.Date),
			item.Description,
			string(item.Type),
			Money(item.GrossAmount),
			Money(item.Commission),
			Money(item.NetAmount),
		)
	}
	line()

	line(sectionPayouts)
	line(payoutsHeader...)
	for _, p := range stmt.Payouts {
		processed := ""
		if p.ProcessedDate != nil {
			processed = formatDate(*p.ProcessedDate)
		}
		line(
			formatDate(p.CreatedDate),
			Money(p.RequestedAmount),
			string(p.Status),
			p.PayoutMethod,
			p.TransactionReference,
			processed,
		)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// ParseCSVSummary reads the SUMMARY block of a document produced by WriteCSV.
func ParseCSVSummary(r io.Reader) (statement.Summary, error) {
	var (
		summary   statement.Summary
		inSummary bool
		seen      int
	)
	targets := map[string]*decimal.Decimal{
		statement.LabelGrossRevenue:       &summary.GrossRevenue,
		statement.LabelPlatformCommission: &summary.PlatformCommission,
		statement.LabelNetEarnings:        &summary.NetEarnings,
		statement.LabelTotalPayouts:       &summary.TotalPayouts,
		statement.LabelPendingPayouts:     &summary.PendingPayouts,
		statement.LabelAvailableBalance:   &summary.AvailableBalance,
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if !inSummary {
			inSummary = text == sectionSummary
			continue
		}
		if text == "" {
			break
		}
		label, value, ok := strings.Cut(text, ",")
		if !ok {
			return statement.Summary{}, fmt.Errorf("%w: line %q", ErrMalformedCSV, text)
		}
		target, known := targets[label]
		if !known {
			continue
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return statement.Summary{}, fmt.Errorf("%w: %s: %v", ErrMalformedCSV, label, err)
		}
		*target = amount
		seen++
	}
	if err := scanner.Err(); err != nil {
		return statement.Summary{}, err
	}
	if seen != len(targets) {
		return statement.Summary{}, ErrMalformedCSV
	}
	return summary, nil
}

// Filename builds the download name, e.g. financial_statement_Asha_Rao_2024-03-15.csv.
func Filename(entityName string, at time.Time, ext string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return '_'
	}, strings.TrimSpace(entityName))
	if strings.Trim(name, "_") == "" {
		name = statement.UnknownLabel
	}
	return fmt.Sprintf("financial_statement_%s_%s.%s", name, at.Format(dateLayout), strings.TrimPrefix(ext, "."))
}

// Money renders an amount with exactly two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
