package statement

import (
	"strconv"
	"time"
)

// Period tokens accepted by the resolver.
const (
	TokenCurrentMonth = "current_month"
	TokenLastMonth    = "last_month"
	TokenLast3Months  = "last_3_months"
	TokenLast6Months  = "last_6_months"
	TokenYTD          = "ytd"
	TokenAllTime      = "all_time"
)

// DefaultInception is the platform launch date used by the all_time period.
var DefaultInception = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

const dateLayout = "2006-01-02"

// Period is a resolved, inclusive date range. End is the last instant covered.
type Period struct {
	Token string    `json:"token"`
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// DateRange renders the literal range, e.g. "2024-02-01 to 2024-02-29".
func (p Period) DateRange() string {
	return p.Start.Format(dateLayout) + " to " + p.End.Format(dateLayout)
}

// Tokens lists the supported period tokens in display order.
func Tokens() []string {
	return []string{TokenCurrentMonth, TokenLastMonth, TokenLast3Months, TokenLast6Months, TokenYTD, TokenAllTime}
}

// Resolver maps period tokens to concrete ranges.
type Resolver struct {
	Inception time.Time
}

// NewResolver builds a resolver; a zero inception falls back to DefaultInception.
func NewResolver(inception time.Time) Resolver {
	if inception.IsZero() {
		inception = DefaultInception
	}
	return Resolver{Inception: inception}
}

// Resolve returns the range for token relative to now. Unknown tokens resolve to
// current_month without error.
func (r Resolver) Resolve(token string, now time.Time) Period {
	loc := now.Location()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	switch token {
	case TokenLastMonth:
		start := monthStart.AddDate(0, -1, 0)
		return Period{Token: token, Label: start.Format("January 2006"), Start: start, End: monthStart.Add(-time.Nanosecond)}
	case TokenLast3Months:
		return Period{Token: token, Label: "Last 3 Months", Start: monthStart.AddDate(0, -3, 0), End: monthEnd}
	case TokenLast6Months:
		return Period{Token: token, Label: "Last 6 Months", Start: monthStart.AddDate(0, -6, 0), End: monthEnd}
	case TokenYTD:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return Period{Token: token, Label: "Year to Date " + strconv.Itoa(now.Year()), Start: start, End: now}
	case TokenAllTime:
		inception := r.Inception
		if inception.IsZero() {
			inception = DefaultInception
		}
		start := inception.In(loc)
		if start.After(now) {
			start = monthStart
		}
		return Period{Token: token, Label: "All Time", Start: start, End: now}
	default:
		return Period{Token: TokenCurrentMonth, Label: now.Format("January 2006"), Start: monthStart, End: monthEnd}
	}
}

// Resolve resolves token with the default inception date.
func Resolve(token string, now time.Time) Period {
	return NewResolver(time.Time{}).Resolve(token, now)
}
