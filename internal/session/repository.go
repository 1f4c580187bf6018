package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// The ingestion pipeline binds a repository to its transaction via
// WithTx so session counter updates commit atomically with the
// telemetry insert.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository defines the interface for session persistence operations.
type Repository interface {
	// Create inserts a new session.
	// Returns ErrAliasTaken if the alias is used within the phase.
	Create(ctx context.Context, s *Session) error

	// GetByID retrieves a session by ID.
	// Returns ErrSessionNotFound if the session does not exist.
	GetByID(ctx context.Context, id string) (*Session, error)

	// GetByPhaseAndAlias resolves a session by its phase-scoped alias.
	// Returns ErrSessionNotFound if no such alias exists in the phase.
	GetByPhaseAndAlias(ctx context.Context, phaseID, alias string) (*Session, error)

	// ListByPhase retrieves all sessions attached to a phase.
	ListByPhase(ctx context.Context, phaseID string) ([]Session, error)

	// UpdateLifecycle moves a session to the target state. The update is
	// guarded so archived rows are never resurrected.
	// Returns ErrTerminalState when the session is archived,
	// ErrSessionNotFound when it does not exist.
	UpdateLifecycle(ctx context.Context, id string, target Lifecycle) error

	// UpdateToken replaces the session's stored identity token.
	UpdateToken(ctx context.Context, id, token string) error

	// RecordContact applies a single uplink's effect on the session row
	// in one atomic statement: bumps message_count when countMessage is
	// set, touches last_contact_at, and folds in the latest temperature
	// and battery readings when present.
	RecordContact(ctx context.Context, id string, at time.Time, temperature, battery *float64, countMessage bool) error

	// ArchiveAllForPhase archives every non-archived session in a phase
	// and returns the number of rows archived.
	ArchiveAllForPhase(ctx context.Context, phaseID string) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db DBTX
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *SQLiteRepository) WithTx(tx *sql.Tx) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

const sessionColumns = `id, device_id, phase_id, alias, lifecycle, message_count,
	last_contact_at, last_temperature, last_battery, identity_token,
	created_at, updated_at`

// Create inserts a new session.
func (r *SQLiteRepository) Create(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO device_phase_sessions (
			id, device_id, phase_id, alias, lifecycle, message_count,
			last_contact_at, last_temperature, last_battery, identity_token,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, NULL, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.DeviceID,
		s.PhaseID,
		s.Alias,
		string(s.Lifecycle),
		nullableString(s.IdentityToken),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", ErrAliasTaken, s.Alias)
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	query := "SELECT " + sessionColumns + " FROM device_phase_sessions WHERE id = ?"

	row := r.db.QueryRowContext(ctx, query, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying session by id: %w", err)
	}
	return s, nil
}

// GetByPhaseAndAlias resolves a session by its phase-scoped alias.
func (r *SQLiteRepository) GetByPhaseAndAlias(ctx context.Context, phaseID, alias string) (*Session, error) {
	query := "SELECT " + sessionColumns + " FROM device_phase_sessions WHERE phase_id = ? AND alias = ?"

	row := r.db.QueryRowContext(ctx, query, phaseID, alias)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying session by alias: %w", err)
	}
	return s, nil
}

// ListByPhase retrieves all sessions attached to a phase.
func (r *SQLiteRepository) ListByPhase(ctx context.Context, phaseID string) ([]Session, error) {
	query := "SELECT " + sessionColumns + " FROM device_phase_sessions WHERE phase_id = ? ORDER BY alias"

	rows, err := r.db.QueryContext(ctx, query, phaseID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// UpdateLifecycle moves a session to the target state.
func (r *SQLiteRepository) UpdateLifecycle(ctx context.Context, id string, target Lifecycle) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidLifecycle, target)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_phase_sessions
		SET lifecycle = ?, updated_at = ?
		WHERE id = ? AND lifecycle != ?`,
		string(target), now, id, string(LifecycleArchived),
	)
	if err != nil {
		return fmt.Errorf("updating session lifecycle: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish missing from archived.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrTerminalState
	}
	return nil
}

// UpdateToken replaces the session's stored identity token.
func (r *SQLiteRepository) UpdateToken(ctx context.Context, id, token string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_phase_sessions
		SET identity_token = ?, updated_at = ?
		WHERE id = ?`,
		token, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating session token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RecordContact applies a single uplink's effect on the session row.
// One statement, so concurrent uplinks never lose counter increments.
func (r *SQLiteRepository) RecordContact(ctx context.Context, id string, at time.Time, temperature, battery *float64, countMessage bool) error {
	increment := 0
	if countMessage {
		increment = 1
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE device_phase_sessions
		SET message_count = message_count + ?,
		    last_contact_at = ?,
		    last_temperature = COALESCE(?, last_temperature),
		    last_battery = COALESCE(?, last_battery),
		    updated_at = ?
		WHERE id = ?`,
		increment,
		at.UTC().Format(time.RFC3339),
		nullableFloat(temperature),
		nullableFloat(battery),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("recording session contact: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ArchiveAllForPhase archives every non-archived session in a phase.
func (r *SQLiteRepository) ArchiveAllForPhase(ctx context.Context, phaseID string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_phase_sessions
		SET lifecycle = ?, updated_at = ?
		WHERE phase_id = ? AND lifecycle != ?`,
		string(LifecycleArchived), now, phaseID, string(LifecycleArchived),
	)
	if err != nil {
		return 0, fmt.Errorf("archiving phase sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession scans a row or rows result into a Session.
func scanSession(scanner rowScanner) (*Session, error) {
	var s Session
	var lifecycle string
	var lastContactAt, identityToken sql.NullString
	var lastTemperature, lastBattery sql.NullFloat64
	var createdAt, updatedAt string

	err := scanner.Scan(
		&s.ID,
		&s.DeviceID,
		&s.PhaseID,
		&s.Alias,
		&lifecycle,
		&s.MessageCount,
		&lastContactAt,
		&lastTemperature,
		&lastBattery,
		&identityToken,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Lifecycle = Lifecycle(lifecycle)

	if lastContactAt.Valid {
		t, err := time.Parse(time.RFC3339, lastContactAt.String)
		if err == nil {
			s.LastContactAt = &t
		}
	}
	if lastTemperature.Valid {
		s.LastTemperature = &lastTemperature.Float64
	}
	if lastBattery.Valid {
		s.LastBattery = &lastBattery.Float64
	}
	if identityToken.Valid {
		s.IdentityToken = &identityToken.String
	}

	var parseErr error
	s.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	s.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &s, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableFloat returns a sql.NullFloat64 for optional float pointers.
func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
