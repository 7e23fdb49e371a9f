package entitystore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.WithNow(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) })

	created, err := store.Create(ctx, CollectionPayoutRequest, Record{"entity_id": "adv-1", "requested_amount": 100})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	_, ok := created.Time(FieldCreatedDate)
	require.True(t, ok)

	_, err = store.Create(ctx, CollectionPayoutRequest, Record{"entity_id": "adv-2", "requested_amount": 50, "created_date": "2024-01-05"})
	require.NoError(t, err)

	records, err := store.Filter(ctx, CollectionPayoutRequest, Match{"entity_id": "adv-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	updated, err := store.Update(ctx, CollectionPayoutRequest, created.ID(), Record{"status": "approved", "id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "approved", updated.String("status"))
	assert.Equal(t, created.ID(), updated.ID())

	all, err := store.List(ctx, CollectionPayoutRequest)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, created.ID(), all[0].ID(), "newest record first")

	require.NoError(t, store.Delete(ctx, CollectionPayoutRequest, created.ID()))
	_, err = store.Get(ctx, CollectionPayoutRequest, created.ID())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, CollectionPayoutRequest, created.ID()), ErrNotFound)
}

func TestMemoryRejectsDuplicateIDAndBlankCollection(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_, err := store.Create(ctx, CollectionUser, Record{"id": "u-1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, CollectionUser, Record{"id": "u-1"})
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = store.List(ctx, " ")
	require.ErrorIs(t, err, ErrInvalidCollection)
}

func TestMemoryFilterComparesNumbers(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_, err := store.Create(ctx, CollectionCourse, Record{"price": json.Number("10.50"), "finfluencer_id": "f-1"})
	require.NoError(t, err)

	records, err := store.Filter(ctx, CollectionCourse, Match{"price": 10.5})
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = store.Filter(ctx, CollectionCourse, Match{"finfluencer_id": "f-2"})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestMemoryFilterKeepsJSONTypes(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_, err := store.Create(ctx, CollectionCourse, Record{"seats": json.Number("42"), "code": "42", "live": true})
	require.NoError(t, err)

	for name, match := range map[string]Match{
		"number vs string": {"seats": "42"},
		"string vs number": {"code": 42},
		"bool vs string":   {"live": "true"},
	} {
		records, err := store.Filter(ctx, CollectionCourse, match)
		require.NoError(t, err)
		assert.Empty(t, records, name)
	}

	for name, match := range map[string]Match{
		"number":  {"seats": 42},
		"float":   {"seats": 42.0},
		"string":  {"code": "42"},
		"boolean": {"live": true},
	} {
		records, err := store.Filter(ctx, CollectionCourse, match)
		require.NoError(t, err)
		assert.Len(t, records, 1, name)
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"amount":   "12.34",
		"number":   json.Number("7"),
		"float":    2.5,
		"bad":      "abc",
		"enabled":  "true",
		"date":     "2024-02-29",
		"datetime": "2024-02-29T13:45:00Z",
		"broken":   "29/02/2024",
	}
	assert.True(t, rec.Decimal("amount").Equal(decimal.RequireFromString("12.34")))
	assert.True(t, rec.Decimal("number").Equal(decimal.NewFromInt(7)))
	assert.True(t, rec.Decimal("float").Equal(decimal.RequireFromString("2.5")))
	assert.True(t, rec.Decimal("bad").IsZero())
	assert.True(t, rec.Decimal("missing").IsZero())

	enabled, ok := rec.Bool("enabled")
	assert.True(t, ok)
	assert.True(t, enabled)

	d, ok := rec.Time("date")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)
	_, ok = rec.Time("datetime")
	assert.True(t, ok)
	_, ok = rec.Time("broken")
	assert.False(t, ok)
	_, ok = rec.Time("missing")
	assert.False(t, ok)
}

func TestEncodeDocumentStripsManagedKeys(t *testing.T) {
	raw, err := encodeDocument(Record{"id": "x", "created_date": "2024-01-01", "updated_date": "y", "title": "Intro"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Intro"}`, raw)

	match, err := encodeMatch(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", match)

	match, err = encodeMatch(Match{"advisor_id": "a-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"advisor_id":"a-1"}`, match)
}

func TestDecodeDocumentKeepsNumbersExact(t *testing.T) {
	rec, err := decodeDocument([]byte(`{"gross_amount": 1000.10}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1000.10"), rec["gross_amount"])
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: pgUniqueViolation}), ErrDuplicate)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: pgInvalidTextRepresents}), ErrNotFound)
	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}
