package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByName retrieves a device by its registered name.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByName(ctx context.Context, name string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByKind retrieves all devices of a specific kind.
	ListByKind(ctx context.Context, kind Kind) ([]Device, error)

	// ListByAvailability retrieves all devices in a specific
	// availability state.
	ListByAvailability(ctx context.Context, state Availability) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the name is already registered.
	Create(ctx context.Context, device *Device) error

	// SetAvailability updates only the availability state.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetAvailability(ctx context.Context, id string, state Availability) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "id, name, kind, availability, created_at, updated_at"

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE id = ?"

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByName retrieves a device by its registered name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE name = ?"

	row := r.db.QueryRowContext(ctx, query, name)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by name: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices ORDER BY name"
	return r.queryDevices(ctx, query)
}

// ListByKind retrieves all devices of a specific kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind Kind) ([]Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE kind = ? ORDER BY name"
	return r.queryDevices(ctx, query, string(kind))
}

// ListByAvailability retrieves all devices in a given availability state.
func (r *SQLiteRepository) ListByAvailability(ctx context.Context, state Availability) ([]Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE availability = ? ORDER BY name"
	return r.queryDevices(ctx, query, string(state))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (id, name, kind, availability, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		string(device.Kind),
		string(device.Availability),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// SetAvailability updates only the availability state.
func (r *SQLiteRepository) SetAvailability(ctx context.Context, id string, state Availability) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET availability = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(state),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device availability: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var kind, availability string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&kind,
		&availability,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = Kind(kind)
	d.Availability = Availability(availability)

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
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
