package statement

import (
	"time"

	"github.com/finverse/finverse/internal/entitystore"
)

// InRange keeps the items whose timestamp lies inside the period, inclusive on both
// ends. Items without a usable timestamp are dropped.
func InRange[T any](items []T, period Period, timestamp func(T) (time.Time, bool)) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		ts, ok := timestamp(item)
		if !ok || !period.Contains(ts) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// RecordsInRange filters store records on their created_date.
func RecordsInRange(records []entitystore.Record, period Period) []entitystore.Record {
	return InRange(records, period, createdDate)
}

func createdDate(rec entitystore.Record) (time.Time, bool) {
	return rec.Time(entitystore.FieldCreatedDate)
}
