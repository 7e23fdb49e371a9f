package entitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Client used for local development and tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]Record
	now         func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string][]Record),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock used to stamp created/updated dates.
func (m *Memory) WithNow(fn func() time.Time) {
	if fn != nil {
		m.now = fn
	}
}

// List returns every record in the collection, newest first.
func (m *Memory) List(ctx context.Context, collection string) ([]Record, error) {
	return m.Filter(ctx, collection, nil)
}

// Filter returns records matching every key of match, newest first.
func (m *Memory) Filter(ctx context.Context, collection string, match Match) ([]Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0)
	for _, rec := range m.collections[collection] {
		if matches(rec, match) {
			out = append(out, rec.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Get returns a single record by id.
func (m *Memory) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.collections[collection] {
		if rec.ID() == id {
			return rec.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Create stores a new record. A caller supplied id or created_date is kept.
func (m *Memory) Create(ctx context.Context, collection string, data Record) (Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := data.Clone()
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
	}
	for _, existing := range m.collections[collection] {
		if existing.ID() == id {
			return nil, ErrDuplicate
		}
	}
	now := m.now()
	rec[FieldID] = id
	if _, ok := rec.Time(FieldCreatedDate); !ok {
		rec[FieldCreatedDate] = now.Format(time.RFC3339Nano)
	}
	rec[FieldUpdatedDate] = now.Format(time.RFC3339Nano)
	m.collections[collection] = append(m.collections[collection], rec)
	return rec.Clone(), nil
}

// Update merges patch into the stored record.
func (m *Memory) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.collections[collection] {
		if rec.ID() != id {
			continue
		}
		merged := rec.Clone()
		for k, v := range patch {
			if k == FieldID || k == FieldCreatedDate {
				continue
			}
			merged[k] = v
		}
		merged[FieldUpdatedDate] = m.now().Format(time.RFC3339Nano)
		m.collections[collection][i] = merged
		return merged.Clone(), nil
	}
	return nil, ErrNotFound
}

// Delete removes a record.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.collections[collection]
	for i, rec := range records {
		if rec.ID() == id {
			m.collections[collection] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func matches(rec Record, match Match) bool {
	for key, want := range match {
		got, ok := rec[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual mirrors JSONB equality: values are compared in their JSON encoding,
// numbers by value, and a string never equals a number.
func valuesEqual(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	if jsonKind(ra) != jsonKind(rb) {
		return false
	}
	if jsonKind(ra) == kindNumber {
		da, errA := decimal.NewFromString(string(ra))
		db, errB := decimal.NewFromString(string(rb))
		return errA == nil && errB == nil && da.Equal(db)
	}
	return bytes.Equal(ra, rb)
}

const (
	kindNumber = iota
	kindString
	kindOther
)

func jsonKind(raw []byte) int {
	if len(raw) == 0 {
		return kindOther
	}
	switch c := raw[0]; {
	case c == '"':
		return kindString
	case c == '-' || (c >= '0' && c <= '9'):
		return kindNumber
	default:
		return kindOther
	}
}

func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, _ := records[i].Time(FieldCreatedDate)
		tj, _ := records[j].Time(FieldCreatedDate)
		return ti.After(tj)
	})
}
