package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldtrace/fieldtrace-core/internal/phase"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists telemetry records.
type Store interface {
	Insert(ctx context.Context, rec *Record) error

	// ListWindow returns records for the session whose received_at
	// falls in [from, to), oldest first. limit <= 0 means no limit.
	ListWindow(ctx context.Context, sessionID string, from, to time.Time, limit int) ([]Record, error)

	// LatestPositions returns, for each session in the phase that has
	// ever reported a position, its most recent latitude/longitude.
	LatestPositions(ctx context.Context, phaseID string) ([]Position, error)

	// Prune deletes records received before the cutoff and reports how
	// many rows were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db DBTX
}

// NewSQLiteStore creates a new SQLite-backed telemetry store.
func NewSQLiteStore(db DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// WithTx returns a store bound to the given transaction, so the insert
// commits atomically with the session contact update and relay upsert.
func (s *SQLiteStore) WithTx(tx *sql.Tx) *SQLiteStore {
	return &SQLiteStore{db: tx}
}

// Insert appends a record and fills in its assigned ID.
func (s *SQLiteStore) Insert(ctx context.Context, rec *Record) error {
	fields, err := marshalFields(rec.Fields)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO telemetry_records (
			session_id, event_time, received_at,
			latitude, longitude, temperature, battery, fields
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.EventTime.UTC().Format(time.RFC3339),
		rec.ReceivedAt.UTC().Format(time.RFC3339),
		rec.Latitude,
		rec.Longitude,
		rec.Temperature,
		rec.Battery,
		fields,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry record: %w", err)
	}

	rec.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading telemetry record id: %w", err)
	}
	return nil
}

// ListWindow returns records in [from, to) for the session, oldest first.
func (s *SQLiteStore) ListWindow(ctx context.Context, sessionID string, from, to time.Time, limit int) ([]Record, error) {
	if to.Before(from) {
		return nil, ErrInvalidWindow
	}

	query := `
		SELECT id, session_id, event_time, received_at,
		       latitude, longitude, temperature, battery, fields
		FROM telemetry_records
		WHERE session_id = ? AND received_at >= ? AND received_at < ?
		ORDER BY received_at ASC`
	args := []any{
		sessionID,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry window: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry records: %w", err)
	}
	return records, nil
}

// LatestPositions returns the most recent reported position per session
// in the phase. Sessions that never reported coordinates are absent.
func (s *SQLiteStore) LatestPositions(ctx context.Context, phaseID string) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.session_id, dps.alias, t.latitude, t.longitude, t.received_at
		FROM telemetry_records t
		JOIN device_phase_sessions dps ON dps.id = t.session_id
		WHERE dps.phase_id = ?
		  AND t.latitude IS NOT NULL AND t.longitude IS NOT NULL
		  AND t.id = (
			SELECT id FROM telemetry_records
			WHERE session_id = t.session_id
			  AND latitude IS NOT NULL AND longitude IS NOT NULL
			ORDER BY received_at DESC, id DESC
			LIMIT 1
		  )
		ORDER BY dps.alias ASC`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("querying latest positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		var receivedAt string
		if err := rows.Scan(&p.SessionID, &p.Alias, &p.Latitude, &p.Longitude, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		p.ReceivedAt, err = time.Parse(time.RFC3339, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating positions: %w", err)
	}
	return positions, nil
}

// Prune deletes records received before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM telemetry_records WHERE received_at < ?`,
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning telemetry records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned records: %w", err)
	}
	return n, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var eventTime, receivedAt, fields string

	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&eventTime,
		&receivedAt,
		&rec.Latitude,
		&rec.Longitude,
		&rec.Temperature,
		&rec.Battery,
		&fields,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning telemetry record: %w", err)
	}

	rec.EventTime, err = time.Parse(time.RFC3339, eventTime)
	if err != nil {
		return nil, fmt.Errorf("parsing event_time: %w", err)
	}
	rec.ReceivedAt, err = time.Parse(time.RFC3339, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing received_at: %w", err)
	}
	if fields != "" && fields != "{}" {
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return nil, fmt.Errorf("parsing fields: %w", err)
		}
	}
	return &rec, nil
}

func marshalFields(fields map[string]phase.FieldValue) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("serialising fields: %w", err)
	}
	return string(raw), nil
}
