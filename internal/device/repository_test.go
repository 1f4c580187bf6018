package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			availability TEXT NOT NULL DEFAULT 'available',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testDevice creates a device for testing.
func testDevice(id, name string, kind Kind) *Device {
	return &Device{
		ID:           id,
		Name:         name,
		Kind:         kind,
		Availability: AvailabilityAvailable,
	}
}

func TestSQLiteRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("creates device successfully", func(t *testing.T) {
		if err := repo.Create(ctx, testDevice("dev-001", "paddock-tracker-01", KindStandalone)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "dev-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "paddock-tracker-01" {
			t.Errorf("Name = %q, want %q", got.Name, "paddock-tracker-01")
		}
		if got.Kind != KindStandalone {
			t.Errorf("Kind = %q, want %q", got.Kind, KindStandalone)
		}
		if got.Availability != AvailabilityAvailable {
			t.Errorf("Availability = %q, want %q", got.Availability, AvailabilityAvailable)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps not set on create")
		}
	})

	t.Run("returns ErrDeviceExists for duplicate name", func(t *testing.T) {
		if err := repo.Create(ctx, testDevice("dev-002", "barn-gateway", KindGateway)); err != nil {
			t.Fatalf("first Create() error = %v", err)
		}

		err := repo.Create(ctx, testDevice("dev-003", "barn-gateway", KindGateway))
		if !errors.Is(err, ErrDeviceExists) {
			t.Errorf("Create() error = %v, want ErrDeviceExists", err)
		}
	})
}

func TestSQLiteRepository_GetByName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("dev-001", "ear-tag-7", KindNode)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByName(ctx, "ear-tag-7")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got.ID != "dev-001" {
		t.Errorf("ID = %q, want dev-001", got.ID)
	}

	if _, err := repo.GetByName(ctx, "no-such-device"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByName() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListByKind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seed := []*Device{
		testDevice("dev-001", "tracker-a", KindStandalone),
		testDevice("dev-002", "gateway-a", KindGateway),
		testDevice("dev-003", "tag-a", KindNode),
		testDevice("dev-004", "tag-b", KindNode),
	}
	for _, d := range seed {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.Name, err)
		}
	}

	nodes, err := repo.ListByKind(ctx, KindNode)
	if err != nil {
		t.Fatalf("ListByKind() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("ListByKind(node) returned %d devices, want 2", len(nodes))
	}
	// Ordered by name.
	if nodes[0].Name != "tag-a" || nodes[1].Name != "tag-b" {
		t.Errorf("ListByKind order = [%s %s], want [tag-a tag-b]", nodes[0].Name, nodes[1].Name)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("List() returned %d devices, want 4", len(all))
	}
}

func TestSQLiteRepository_SetAvailability(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("dev-001", "tracker-a", KindStandalone)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.SetAvailability(ctx, "dev-001", AvailabilityInUse); err != nil {
		t.Fatalf("SetAvailability() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "dev-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Availability != AvailabilityInUse {
		t.Errorf("Availability = %q, want %q", got.Availability, AvailabilityInUse)
	}

	if err := repo.SetAvailability(ctx, "no-such", AvailabilityAvailable); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetAvailability() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("dev-001", "tracker-a", KindStandalone)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, "dev-001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "dev-001"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, "dev-001"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
}
