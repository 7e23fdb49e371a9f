package statement

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finverse/finverse/internal/entitystore"
)

// Source record fields.
const (
	fieldGrossAmount        = "gross_amount"
	fieldPlatformCommission = "platform_commission"
	fieldCreatorPayout      = "creator_payout"
	fieldOrganizerPayout    = "organizer_payout"
	fieldAdvisorPayout      = "advisor_payout"
	fieldCourseID           = "course_id"
	fieldEventID            = "event_id"
	fieldBillingModel       = "billing_model"
	fieldBillingAmount      = "amount"
	fieldTitle              = "title"
)

// Lookups resolves cross references used in line item descriptions.
type Lookups struct {
	Courses map[string]string `json:"courses"`
	Events  map[string]string `json:"events"`
}

func (l Lookups) course(id string) string {
	return titleOrUnknown(l.Courses, id)
}

func (l Lookups) event(id string) string {
	return titleOrUnknown(l.Events, id)
}

func titleOrUnknown(titles map[string]string, id string) string {
	if title := strings.TrimSpace(titles[id]); title != "" {
		return title
	}
	return UnknownLabel
}

// NormalizeCourseSales maps RevenueTransaction records into Course Sale items.
func NormalizeCourseSales(records []entitystore.Record, lookups Lookups) []LineItem {
	items := make([]LineItem, 0, len(records))
	for _, rec := range records {
		items = append(items, lineFrom(rec, TypeCourseSale,
			"Course: "+lookups.course(rec.String(fieldCourseID)),
			rec.Decimal(fieldGrossAmount),
			rec.Decimal(fieldPlatformCommission),
			rec.Decimal(fieldCreatorPayout),
		))
	}
	return items
}

// NormalizeEventCommissions maps EventCommissionTracking records into Event Revenue items.
func NormalizeEventCommissions(records []entitystore.Record, lookups Lookups) []LineItem {
	items := make([]LineItem, 0, len(records))
	for _, rec := range records {
		items = append(items, lineFrom(rec, TypeEventRevenue,
			"Event: "+lookups.event(rec.String(fieldEventID)),
			rec.Decimal(fieldGrossAmount),
			rec.Decimal(fieldPlatformCommission),
			rec.Decimal(fieldOrganizerPayout),
		))
	}
	return items
}

// NormalizeSubscriptions maps advisor CommissionTracking records.
func NormalizeSubscriptions(records []entitystore.Record) []LineItem {
	items := make([]LineItem, 0, len(records))
	for _, rec := range records {
		items = append(items, lineFrom(rec, TypeSubscription,
			"Subscription Income",
			rec.Decimal(fieldGrossAmount),
			rec.Decimal(fieldPlatformCommission),
			rec.Decimal(fieldAdvisorPayout),
		))
	}
	return items
}

// NormalizeAdBilling maps vendor CampaignBilling records. Vendor spend carries no
// commission, so the net amount always equals the gross amount.
func NormalizeAdBilling(records []entitystore.Record) []LineItem {
	items := make([]LineItem, 0, len(records))
	for _, rec := range records {
		model := strings.ToUpper(strings.TrimSpace(rec.String(fieldBillingModel)))
		if model == "" {
			model = strings.ToUpper(UnknownLabel)
		}
		gross := rec.Decimal(fieldBillingAmount)
		items = append(items, lineFrom(rec, TypeAdSpend, "Ad Spend ("+model+")", gross, decimal.Zero, gross))
	}
	return items
}

func lineFrom(rec entitystore.Record, typ LineType, description string, gross, commission, net decimal.Decimal) LineItem {
	item := LineItem{
		Description: description,
		GrossAmount: gross,
		Commission:  commission,
		NetAmount:   net,
		Type:        typ,
	}
	if ts, ok := createdDate(rec); ok {
		item.Date = ts
	}
	return item
}

// SortNewestFirst orders line items by date descending, keeping ties stable.
func SortNewestFirst(items []LineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date)
	})
}
