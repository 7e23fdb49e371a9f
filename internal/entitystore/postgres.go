package entitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finverse/finverse/internal/platform/db"
)

const (
	pgUniqueViolation       = "23505"
	pgInvalidTextRepresents = "22P02"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entity_records (
		id UUID PRIMARY KEY,
		collection TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_records_collection ON entity_records (collection, created_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_records_data ON entity_records USING GIN (data jsonb_path_ops)`,
}

// PGStore persists records as JSONB documents in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the backing table and indexes when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("entitystore: ensure schema: %w", err)
			}
		}
		return nil
	})
}

// List returns every record in the collection, newest first.
func (s *PGStore) List(ctx context.Context, collection string) ([]Record, error) {
	return s.Filter(ctx, collection, nil)
}

// Filter returns records whose document contains every key/value in match.
func (s *PGStore) Filter(ctx context.Context, collection string, match Match) ([]Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	predicate, err := encodeMatch(match)
	if err != nil {
		return nil, err
	}
	const query = `SELECT id, data, created_date, updated_date
		FROM entity_records
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY created_date DESC`
	rows, err := s.pool.Query(ctx, query, collection, predicate)
	if err != nil {
		return nil, fmt.Errorf("entitystore: filter %s: %w", collection, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entitystore: filter %s: %w", collection, err)
	}
	return out, nil
}

// Get returns a record by id.
func (s *PGStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	const query = `SELECT id, data, created_date, updated_date
		FROM entity_records WHERE collection = $1 AND id = $2`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, collection, id))
	if err != nil {
		return nil, mapError(err)
	}
	return rec, nil
}

// Create inserts a new record. A caller supplied id or created_date is kept.
func (s *PGStore) Create(ctx context.Context, collection string, data Record) (Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	id := uuid.New()
	if supplied := data.ID(); supplied != "" {
		parsed, err := uuid.Parse(supplied)
		if err != nil {
			return nil, fmt.Errorf("entitystore: invalid id %q: %w", supplied, err)
		}
		id = parsed
	}
	created := time.Now().UTC()
	if ts, ok := data.Time(FieldCreatedDate); ok {
		created = ts
	}
	payload, err := encodeDocument(data)
	if err != nil {
		return nil, err
	}
	const query = `INSERT INTO entity_records (id, collection, data, created_date, updated_date)
		VALUES ($1, $2, $3::jsonb, $4, NOW())
		RETURNING id, data, created_date, updated_date`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id, collection, payload, created))
	if err != nil {
		return nil, mapError(err)
	}
	return rec, nil
}

// Update merges patch into the stored document.
func (s *PGStore) Update(ctx context.Context, collection, id string, patch Record) (Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	payload, err := encodeDocument(patch)
	if err != nil {
		return nil, err
	}
	const query = `UPDATE entity_records
		SET data = data || $3::jsonb, updated_date = NOW()
		WHERE collection = $1 AND id = $2
		RETURNING id, data, created_date, updated_date`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, collection, id, payload))
	if err != nil {
		return nil, mapError(err)
	}
	return rec, nil
}

// Delete removes a record.
func (s *PGStore) Delete(ctx context.Context, collection, id string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM entity_records WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		id      uuid.UUID
		raw     []byte
		created time.Time
		updated time.Time
	)
	if err := row.Scan(&id, &raw, &created, &updated); err != nil {
		return nil, err
	}
	rec, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	rec[FieldID] = id.String()
	rec[FieldCreatedDate] = created.UTC().Format(time.RFC3339Nano)
	rec[FieldUpdatedDate] = updated.UTC().Format(time.RFC3339Nano)
	return rec, nil
}

// encodeDocument strips store-managed keys before persisting the document.
func encodeDocument(data Record) (string, error) {
	doc := make(map[string]any, len(data))
	for k, v := range data {
		switch k {
		case FieldID, FieldCreatedDate, FieldUpdatedDate:
			continue
		}
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("entitystore: encode document: %w", err)
	}
	return string(raw), nil
}

func encodeMatch(match Match) (string, error) {
	if len(match) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]any(match))
	if err != nil {
		return "", fmt.Errorf("entitystore: encode match: %w", err)
	}
	return string(raw), nil
}

func decodeDocument(raw []byte) (Record, error) {
	rec := make(Record)
	if len(raw) == 0 {
		return rec, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("entitystore: decode document: %w", err)
	}
	return rec, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrDuplicate
		case pgInvalidTextRepresents:
			return ErrNotFound
		}
	}
	return err
}
