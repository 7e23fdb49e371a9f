// Package entitystore provides the generic record client every dashboard reads and
// writes through: named collections of loosely typed JSON documents.
package entitystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names shared across the platform.
const (
	CollectionRevenueTransaction      = "RevenueTransaction"
	CollectionCommissionTracking      = "CommissionTracking"
	CollectionEventCommissionTracking = "EventCommissionTracking"
	CollectionCampaignBilling         = "CampaignBilling"
	CollectionPayoutRequest           = "PayoutRequest"
	CollectionCourse                  = "Course"
	CollectionEvent                   = "Event"
	CollectionUser                    = "User"
	CollectionFeatureConfig           = "FeatureConfig"
	CollectionStatementSnapshot       = "StatementSnapshot"
)

// Reserved record keys managed by the store.
const (
	FieldID          = "id"
	FieldCreatedDate = "created_date"
	FieldUpdatedDate = "updated_date"
)

var (
	// ErrNotFound indicates the record does not exist in the collection.
	ErrNotFound = errors.New("entitystore: record not found")
	// ErrInvalidCollection indicates an empty or malformed collection name.
	ErrInvalidCollection = errors.New("entitystore: invalid collection")
	// ErrDuplicate indicates a record with the same id already exists.
	ErrDuplicate = errors.New("entitystore: duplicate record")
)

// Record is a single document. Values follow JSON decoding rules.
type Record map[string]any

// Match is an equality predicate: every key must equal the record value.
type Match map[string]any

// Client is the CRUD surface over named collections.
type Client interface {
	List(ctx context.Context, collection string) ([]Record, error)
	Filter(ctx context.Context, collection string, match Match) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Create(ctx context.Context, collection string, data Record) (Record, error)
	Update(ctx context.Context, collection, id string, patch Record) (Record, error)
	Delete(ctx context.Context, collection, id string) error
}

// ID returns the record identifier.
func (r Record) ID() string {
	return r.String(FieldID)
}

// String returns the value under key rendered as text, or "" when absent.
func (r Record) String(key string) string {
	if r == nil {
		return ""
	}
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Bool reports the boolean under key; textual "true"/"1" are accepted.
func (r Record) Bool(key string) (bool, bool) {
	if r == nil {
		return false, false
	}
	switch v := r[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// Decimal returns the numeric value under key. Missing or non-numeric values yield zero.
func (r Record) Decimal(key string) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	d, ok := toDecimal(r[key])
	if !ok {
		return decimal.Zero
	}
	return d
}

// Time parses the timestamp under key. The second result is false when the value is
// missing or cannot be parsed.
func (r Record) Time(key string) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	return ParseTime(r[key])
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts time.Time values and the textual layouts used by the store.
func ParseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val, true
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return val, true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(val), true
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	case uint32:
		return decimal.NewFromInt(int64(val)), true
	default:
		return decimal.Zero, false
	}
}

func validCollection(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidCollection
	}
	return nil
}
