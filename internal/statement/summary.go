package statement

import (
	"github.com/shopspring/decimal"
)

// Summary aggregates a statement. AvailableBalance always equals
// NetEarnings - TotalPayouts - PendingPayouts, without clamping.
type Summary struct {
	GrossRevenue       decimal.Decimal `json:"gross_revenue"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	NetEarnings        decimal.Decimal `json:"net_earnings"`
	TotalPayouts       decimal.Decimal `json:"total_payouts"`
	PendingPayouts     decimal.Decimal `json:"pending_payouts"`
	AvailableBalance   decimal.Decimal `json:"available_balance"`
}

// SummaryLine is a labelled summary value in presentation order.
type SummaryLine struct {
	Label  string
	Amount decimal.Decimal
}

// Summary labels in presentation order.
const (
	LabelGrossRevenue       = "Gross Revenue"
	LabelPlatformCommission = "Platform Commission"
	LabelNetEarnings        = "Net Earnings"
	LabelTotalPayouts       = "Total Payouts"
	LabelPendingPayouts     = "Pending Payouts"
	LabelAvailableBalance   = "Available Balance"
)

// Lines returns the six summary values in presentation order.
func (s Summary) Lines() []SummaryLine {
	return []SummaryLine{
		{Label: LabelGrossRevenue, Amount: s.GrossRevenue},
		{Label: LabelPlatformCommission, Amount: s.PlatformCommission},
		{Label: LabelNetEarnings, Amount: s.NetEarnings},
		{Label: LabelTotalPayouts, Amount: s.TotalPayouts},
		{Label: LabelPendingPayouts, Amount: s.PendingPayouts},
		{Label: LabelAvailableBalance, Amount: s.AvailableBalance},
	}
}

// Withdrawable is the available balance clamped at zero.
func (s Summary) Withdrawable() decimal.Decimal {
	if s.AvailableBalance.IsNegative() {
		return decimal.Zero
	}
	return s.AvailableBalance
}

// Summarize reduces line items and payout requests into a Summary. Processed payouts
// count as paid out; pending and approved payouts are reserved.
func Summarize(items []LineItem, payouts []Payout) Summary {
	var s Summary
	for _, item := range items {
		s.GrossRevenue = s.GrossRevenue.Add(item.GrossAmount)
		s.PlatformCommission = s.PlatformCommission.Add(item.Commission)
		s.NetEarnings = s.NetEarnings.Add(item.NetAmount)
	}
	for _, p := range payouts {
		switch p.Status {
		case PayoutProcessed:
			s.TotalPayouts = s.TotalPayouts.Add(p.RequestedAmount)
		case PayoutPending, PayoutApproved:
			s.PendingPayouts = s.PendingPayouts.Add(p.RequestedAmount)
		}
	}
	s.AvailableBalance = s.NetEarnings.Sub(s.TotalPayouts).Sub(s.PendingPayouts)
	return s
}

// TypeTotal sums the line items of one type.
type TypeTotal struct {
	Type        LineType        `json:"type"`
	Count       int             `json:"count"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}

// Breakdown groups line items by type in first-seen order.
func Breakdown(items []LineItem) []TypeTotal {
	totals := make([]TypeTotal, 0)
	index := make(map[LineType]int)
	for _, item := range items {
		i, ok := index[item.Type]
		if !ok {
			i = len(totals)
			index[item.Type] = i
			totals = append(totals, TypeTotal{Type: item.Type})
		}
		totals[i].Count++
		totals[i].GrossAmount = totals[i].GrossAmount.Add(item.GrossAmount)
		totals[i].NetAmount = totals[i].NetAmount.Add(item.NetAmount)
	}
	return totals
}
