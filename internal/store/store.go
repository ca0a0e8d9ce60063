package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store persists entity records in the bridge's SQLite database.
//
// Writes go through on every state change (write-through), so a restart
// can serve the last known values before the first fetch completes.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open database connection. The entities
// table must already exist (migrations run at startup).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts a record or refreshes an existing one's descriptive
// fields. The last known value of an existing record is preserved.
func (s *Store) Upsert(ctx context.Context, rec *Record) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO entities (
			unique_id, kind, thing_id, datastream_id, name, unit, category,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			kind = excluded.kind,
			thing_id = excluded.thing_id,
			datastream_id = excluded.datastream_id,
			name = excluded.name,
			unit = excluded.unit,
			category = excluded.category,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		rec.UniqueID, string(rec.Kind), rec.ThingID, rec.DatastreamID,
		rec.Name, rec.Unit, rec.Category, now, now)
	if err != nil {
		return fmt.Errorf("upserting entity %s: %w", rec.UniqueID, err)
	}
	return nil
}

// UpdateValue records an entity's latest value and update time.
func (s *Store) UpdateValue(ctx context.Context, uniqueID, value string, at time.Time) error {
	query := `
		UPDATE entities
		SET last_value = ?, last_updated_at = ?, updated_at = ?
		WHERE unique_id = ?`

	ts := at.UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, query, value, ts, ts, uniqueID)
	if err != nil {
		return fmt.Errorf("updating entity value %s: %w", uniqueID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating entity value %s: %w", uniqueID, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByUniqueID retrieves one entity record.
//
// Returns:
//   - *Record: the persisted record
//   - error: ErrNotFound when no record exists
func (s *Store) GetByUniqueID(ctx context.Context, uniqueID string) (*Record, error) {
	query := selectColumns + ` WHERE unique_id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, uniqueID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying entity %s: %w", uniqueID, err)
	}
	return rec, nil
}

// List retrieves all entity records ordered by unique ID.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	query := selectColumns + ` ORDER BY unique_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("listing entities: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	return records, nil
}

// DeleteMissing removes records whose unique IDs are not in keep. Called
// after a fleet rebuild so entities for retired Things do not linger.
func (s *Store) DeleteMissing(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM entities`)
		if err != nil {
			return 0, fmt.Errorf("deleting stale entities: %w", err)
		}
		return res.RowsAffected()
	}

	query := `DELETE FROM entities WHERE unique_id NOT IN (?` +
		repeatPlaceholder(len(keep)-1) + `)`
	args := make([]any, len(keep))
	for i, id := range keep {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting stale entities: %w", err)
	}
	return res.RowsAffected()
}

func repeatPlaceholder(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, ',', '?')
	}
	return string(out)
}

const selectColumns = `
	SELECT unique_id, kind, thing_id, datastream_id, name, unit, category,
		last_value, last_updated_at, created_at, updated_at
	FROM entities`

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var kind string
	var datastreamID, lastValue, lastUpdated sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&rec.UniqueID, &kind, &rec.ThingID, &datastreamID,
		&rec.Name, &rec.Unit, &rec.Category,
		&lastValue, &lastUpdated, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Kind = Kind(kind)
	rec.DatastreamID = datastreamID.String
	rec.LastValue = lastValue.String
	if lastUpdated.Valid {
		if ts, err := time.Parse(time.RFC3339, lastUpdated.String); err == nil {
			rec.LastUpdated = &ts
		}
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		rec.UpdatedAt = ts
	}
	return &rec, nil
}
