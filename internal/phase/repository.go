package phase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for phase and field-schema persistence.
type Repository interface {
	// Create inserts a new phase row together with its default field
	// definitions.
	Create(ctx context.Context, p *Phase) error

	// GetByID retrieves a phase by ID.
	// Returns ErrPhaseNotFound if the phase does not exist.
	GetByID(ctx context.Context, id string) (*Phase, error)

	// List retrieves all phases, newest first.
	List(ctx context.Context) ([]Phase, error)

	// End marks a phase inactive and stamps ended_at.
	// Returns ErrPhaseEnded if already ended.
	End(ctx context.Context, id string) error

	// ListFields retrieves the field schema for a phase, defaults first.
	ListFields(ctx context.Context, phaseID string) ([]FieldDef, error)

	// AddField declares a custom field on a phase schema.
	// Returns ErrFieldExists on a duplicate name.
	AddField(ctx context.Context, f *FieldDef) error

	// RemoveField removes a custom field from a phase schema.
	// Returns ErrFieldReserved for default fields.
	RemoveField(ctx context.Context, phaseID, name string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new phase row together with its default fields.
// The phase and its defaults commit atomically.
func (r *SQLiteRepository) Create(ctx context.Context, p *Phase) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.StartedAt.IsZero() {
		p.StartedAt = now
	}
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning phase create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO phases (id, name, active, started_at, ended_at, created_at, updated_at)
		VALUES (?, ?, 1, ?, NULL, ?, ?)`,
		p.ID,
		p.Name,
		p.StartedAt.Format(time.RFC3339),
		p.CreatedAt.Format(time.RFC3339),
		p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting phase: %w", err)
	}

	for _, f := range defaultFields() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO phase_fields (id, phase_id, name, type, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(),
			p.ID,
			f.Name,
			string(f.Type),
			f.Description,
			now.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting default field %s: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing phase create: %w", err)
	}
	return nil
}

// GetByID retrieves a phase by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Phase, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, active, started_at, ended_at, created_at, updated_at
		FROM phases WHERE id = ?`, id)

	p, err := scanPhase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPhaseNotFound
		}
		return nil, fmt.Errorf("querying phase: %w", err)
	}
	return p, nil
}

// List retrieves all phases, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Phase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, active, started_at, ended_at, created_at, updated_at
		FROM phases ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying phases: %w", err)
	}
	defer rows.Close()

	var phases []Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning phase: %w", err)
		}
		phases = append(phases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating phases: %w", err)
	}
	return phases, nil
}

// End marks a phase inactive and stamps ended_at. The WHERE clause
// guards against double-ending; a second call reports ErrPhaseEnded.
func (r *SQLiteRepository) End(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE phases
		SET active = 0, ended_at = ?, updated_at = ?
		WHERE id = ? AND active = 1`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("ending phase: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish missing from already-ended.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrPhaseEnded
	}
	return nil
}

// ListFields retrieves the field schema for a phase, oldest first so
// the defaults lead.
func (r *SQLiteRepository) ListFields(ctx context.Context, phaseID string) ([]FieldDef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, phase_id, name, type, description, created_at
		FROM phase_fields
		WHERE phase_id = ?
		ORDER BY created_at, name`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("querying phase fields: %w", err)
	}
	defer rows.Close()

	var fields []FieldDef
	for rows.Next() {
		var f FieldDef
		var ftype, createdAt string
		if err := rows.Scan(&f.ID, &f.PhaseID, &f.Name, &ftype, &f.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning phase field: %w", err)
		}
		f.Type = FieldType(ftype)
		f.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing field created_at: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating phase fields: %w", err)
	}
	return fields, nil
}

// AddField declares a custom field on a phase schema.
func (r *SQLiteRepository) AddField(ctx context.Context, f *FieldDef) error {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return ErrInvalidFieldName
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFieldType, f.Type)
	}
	if isReservedField(name) {
		return fmt.Errorf("%w: %q", ErrFieldReserved, name)
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Name = name
	f.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO phase_fields (id, phase_id, name, type, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.PhaseID,
		f.Name,
		string(f.Type),
		f.Description,
		f.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", ErrFieldExists, f.Name)
		}
		return fmt.Errorf("inserting phase field: %w", err)
	}
	return nil
}

// RemoveField removes a custom field from a phase schema.
func (r *SQLiteRepository) RemoveField(ctx context.Context, phaseID, name string) error {
	if isReservedField(name) {
		return fmt.Errorf("%w: %q", ErrFieldReserved, name)
	}

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM phase_fields WHERE phase_id = ? AND name = ?", phaseID, name)
	if err != nil {
		return fmt.Errorf("deleting phase field: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrFieldNotFound
	}
	return nil
}

// isReservedField reports whether the name is one of the default fields.
func isReservedField(name string) bool {
	switch name {
	case FieldLatitude, FieldLongitude, FieldTemperature, FieldBattery:
		return true
	default:
		return false
	}
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPhase scans a row or rows result into a Phase.
func scanPhase(scanner rowScanner) (*Phase, error) {
	var p Phase
	var active int
	var startedAt, createdAt, updatedAt string
	var endedAt sql.NullString

	err := scanner.Scan(&p.ID, &p.Name, &active, &startedAt, &endedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.Active = active != 0

	var parseErr error
	p.StartedAt, parseErr = time.Parse(time.RFC3339, startedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing started_at: %w", parseErr)
	}
	p.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	p.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		p.EndedAt = &t
	}

	return &p, nil
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
