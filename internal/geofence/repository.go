package geofence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists geofences.
type Repository interface {
	Create(ctx context.Context, g *Geofence) error
	GetByID(ctx context.Context, id string) (*Geofence, error)
	ListForPhase(ctx context.Context, phaseID string) ([]Geofence, error)
	ListActiveForPhase(ctx context.Context, phaseID string) ([]Geofence, error)
	Update(ctx context.Context, g *Geofence) error
	Delete(ctx context.Context, id string) error

	// IncrementExitCount bumps the exit counter as a single atomic
	// statement; it never read-modify-writes.
	IncrementExitCount(ctx context.Context, id string) error
}

// StateStore tracks the outside/inside flag per (session, geofence)
// pair. A missing row means the session has never been observed
// outside that geofence.
type StateStore interface {
	IsOutside(ctx context.Context, sessionID, geofenceID string) (bool, error)
	SetOutside(ctx context.Context, sessionID, geofenceID string, outside bool, at time.Time) error
	DeleteForSession(ctx context.Context, sessionID string) error
}

const geofenceColumns = `id, phase_id, name, ring, active, exit_alert_count, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db DBTX
}

// NewSQLiteRepository creates a new SQLite-backed geofence repository.
func NewSQLiteRepository(db DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *SQLiteRepository) WithTx(tx *sql.Tx) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

// Create inserts a new geofence.
func (r *SQLiteRepository) Create(ctx context.Context, g *Geofence) error {
	ring, err := json.Marshal(g.Ring)
	if err != nil {
		return fmt.Errorf("serialising ring: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO geofences (id, phase_id, name, ring, active, exit_alert_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.PhaseID,
		g.Name,
		string(ring),
		g.Active,
		g.ExitAlertCount,
		g.CreatedAt.UTC().Format(time.RFC3339),
		g.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting geofence: %w", err)
	}
	return nil
}

// GetByID retrieves a geofence by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Geofence, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+geofenceColumns+` FROM geofences WHERE id = ?`, id)

	g, err := scanGeofence(row)
	if err == sql.ErrNoRows {
		return nil, ErrGeofenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListForPhase returns every geofence of the phase, by name.
func (r *SQLiteRepository) ListForPhase(ctx context.Context, phaseID string) ([]Geofence, error) {
	return r.list(ctx,
		`SELECT `+geofenceColumns+` FROM geofences WHERE phase_id = ? ORDER BY name ASC`, phaseID)
}

// ListActiveForPhase returns the active geofences of the phase. The
// evaluator calls this on every position-bearing ingestion.
func (r *SQLiteRepository) ListActiveForPhase(ctx context.Context, phaseID string) ([]Geofence, error) {
	return r.list(ctx,
		`SELECT `+geofenceColumns+` FROM geofences WHERE phase_id = ? AND active = 1 ORDER BY name ASC`, phaseID)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]Geofence, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying geofences: %w", err)
	}
	defer rows.Close()

	var fences []Geofence
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, err
		}
		fences = append(fences, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating geofences: %w", err)
	}
	return fences, nil
}

// Update rewrites the geofence's mutable attributes. The exit counter
// is deliberately excluded; only IncrementExitCount moves it.
func (r *SQLiteRepository) Update(ctx context.Context, g *Geofence) error {
	ring, err := json.Marshal(g.Ring)
	if err != nil {
		return fmt.Errorf("serialising ring: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE geofences
		SET name = ?, ring = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		g.Name,
		string(ring),
		g.Active,
		g.UpdatedAt.UTC().Format(time.RFC3339),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("updating geofence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrGeofenceNotFound
	}
	return nil
}

// Delete removes a geofence and its per-session state rows.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM geofence_state WHERE geofence_id = ?`, id); err != nil {
		return fmt.Errorf("deleting geofence state: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM geofences WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting geofence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrGeofenceNotFound
	}
	return nil
}

// IncrementExitCount bumps exit_alert_count in one statement.
func (r *SQLiteRepository) IncrementExitCount(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE geofences
		SET exit_alert_count = exit_alert_count + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("incrementing exit count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking increment result: %w", err)
	}
	if n == 0 {
		return ErrGeofenceNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeofence(row rowScanner) (*Geofence, error) {
	var g Geofence
	var ring, createdAt, updatedAt string

	err := row.Scan(
		&g.ID,
		&g.PhaseID,
		&g.Name,
		&ring,
		&g.Active,
		&g.ExitAlertCount,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning geofence: %w", err)
	}

	if err := json.Unmarshal([]byte(ring), &g.Ring); err != nil {
		return nil, fmt.Errorf("parsing ring: %w", err)
	}
	g.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	g.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &g, nil
}

// SQLiteStateStore implements StateStore using SQLite.
type SQLiteStateStore struct {
	db DBTX
}

// NewSQLiteStateStore creates a new SQLite-backed state store.
func NewSQLiteStateStore(db DBTX) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

// WithTx returns a state store bound to the given transaction.
func (s *SQLiteStateStore) WithTx(tx *sql.Tx) *SQLiteStateStore {
	return &SQLiteStateStore{db: tx}
}

// IsOutside reports the stored flag; no row means inside.
func (s *SQLiteStateStore) IsOutside(ctx context.Context, sessionID, geofenceID string) (bool, error) {
	var outside bool
	err := s.db.QueryRowContext(ctx, `
		SELECT outside FROM geofence_state
		WHERE session_id = ? AND geofence_id = ?`,
		sessionID, geofenceID,
	).Scan(&outside)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying geofence state: %w", err)
	}
	return outside, nil
}

// SetOutside upserts the flag for the (session, geofence) pair.
func (s *SQLiteStateStore) SetOutside(ctx context.Context, sessionID, geofenceID string, outside bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geofence_state (session_id, geofence_id, outside, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, geofence_id)
		DO UPDATE SET outside = excluded.outside, updated_at = excluded.updated_at`,
		sessionID, geofenceID, outside, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing geofence state: %w", err)
	}
	return nil
}

// DeleteForSession removes the session's state rows. Called on detach.
func (s *SQLiteStateStore) DeleteForSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM geofence_state WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting geofence state: %w", err)
	}
	return nil
}
