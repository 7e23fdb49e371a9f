package statement

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finverse/finverse/internal/entitystore"
)

// EntityKind identifies the role an entity plays on the platform.
type EntityKind string

const (
	KindAdvisor     EntityKind = "advisor"
	KindFinfluencer EntityKind = "finfluencer"
	KindOrganizer   EntityKind = "organizer"
	KindVendor      EntityKind = "vendor"
)

// Kinds lists every entity kind with a financial statement.
func Kinds() []EntityKind {
	return []EntityKind{KindAdvisor, KindFinfluencer, KindOrganizer, KindVendor}
}

// ParseKind normalises a textual kind; ok is false for unsupported values.
func ParseKind(v string) (EntityKind, bool) {
	kind := EntityKind(strings.ToLower(strings.TrimSpace(v)))
	for _, k := range Kinds() {
		if k == kind {
			return kind, true
		}
	}
	return "", false
}

// LineType labels the origin of a line item.
type LineType string

const (
	TypeCourseSale   LineType = "Course Sale"
	TypeEventRevenue LineType = "Event Revenue"
	TypeSubscription LineType = "Subscription"
	TypeAdSpend      LineType = "Ad Spend"
)

// LineItem is one normalised earnings (or vendor spend) record.
type LineItem struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	Commission  decimal.Decimal `json:"commission"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	Type        LineType        `json:"type"`
}

// PayoutStatus enumerates payout request states.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutApproved  PayoutStatus = "approved"
	PayoutProcessed PayoutStatus = "processed"
	PayoutRejected  PayoutStatus = "rejected"
)

// Payout is a withdrawal request against an entity's balance.
type Payout struct {
	ID                   string          `json:"id"`
	EntityKind           EntityKind      `json:"entity_kind"`
	EntityID             string          `json:"entity_id"`
	RequestedAmount      decimal.Decimal `json:"requested_amount"`
	Status               PayoutStatus    `json:"status"`
	CreatedDate          time.Time       `json:"created_date"`
	ProcessedDate        *time.Time      `json:"processed_date,omitempty"`
	PayoutMethod         string          `json:"payout_method"`
	TransactionReference string          `json:"transaction_reference,omitempty"`
	Note                 string          `json:"note,omitempty"`
}

// Payout record fields.
const (
	FieldPayoutEntityID  = "entity_id"
	FieldPayoutKind      = "entity_type"
	FieldPayoutAmount    = "requested_amount"
	FieldPayoutStatus    = "status"
	FieldPayoutProcessed = "processed_date"
	FieldPayoutMethod    = "payout_method"
	FieldPayoutReference = "transaction_reference"
	FieldPayoutNote      = "note"
)

// PayoutFromRecord maps a PayoutRequest record. Missing amounts become zero.
func PayoutFromRecord(rec entitystore.Record) Payout {
	p := Payout{
		ID:                   rec.ID(),
		EntityKind:           EntityKind(strings.ToLower(rec.String(FieldPayoutKind))),
		EntityID:             rec.String(FieldPayoutEntityID),
		RequestedAmount:      rec.Decimal(FieldPayoutAmount),
		Status:               PayoutStatus(strings.ToLower(strings.TrimSpace(rec.String(FieldPayoutStatus)))),
		PayoutMethod:         rec.String(FieldPayoutMethod),
		TransactionReference: rec.String(FieldPayoutReference),
		Note:                 rec.String(FieldPayoutNote),
	}
	if ts, ok := rec.Time(entitystore.FieldCreatedDate); ok {
		p.CreatedDate = ts
	}
	if ts, ok := rec.Time(FieldPayoutProcessed); ok {
		p.ProcessedDate = &ts
	}
	return p
}

// Entity identifies the statement owner.
type Entity struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
	Name string     `json:"name"`
}

// Statement is the computed view for one entity and period. It is never persisted by
// the service and is only valid for the instant it was generated.
type Statement struct {
	Entity      Entity      `json:"entity"`
	Period      Period      `json:"period"`
	Summary     Summary     `json:"summary"`
	Earnings    []LineItem  `json:"earnings"`
	Payouts     []Payout    `json:"payouts"`
	Breakdown   []TypeTotal `json:"breakdown"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Request selects the entity and period of a statement.
type Request struct {
	EntityKind  EntityKind `validate:"required,oneof=advisor finfluencer organizer vendor"`
	EntityID    string     `validate:"required,max=128"`
	PeriodToken string
}

var (
	// ErrInvalidRequest indicates a malformed statement request.
	ErrInvalidRequest = errors.New("statement: invalid request")
	// ErrStatementUnavailable indicates the statement could not be assembled.
	ErrStatementUnavailable = errors.New("statement: failed to load financial statement")
)

// UnknownLabel replaces missing cross references and names.
const UnknownLabel = "Unknown"
