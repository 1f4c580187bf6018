package phase

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the phase tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE phases (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE phase_fields (
			id TEXT PRIMARY KEY,
			phase_id TEXT NOT NULL REFERENCES phases(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (phase_id, name)
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

func createTestPhase(t *testing.T, repo *SQLiteRepository, name string) *Phase {
	t.Helper()
	p := &Phase{Name: name}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return p
}

func TestSQLiteRepository_Create_SeedsDefaultFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	p := createTestPhase(t, repo, "spring-grazing")

	if !p.Active {
		t.Error("new phase not active")
	}

	fields, err := repo.ListFields(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListFields() error = %v", err)
	}
	if len(fields) != 4 {
		t.Fatalf("ListFields() returned %d fields, want 4 defaults", len(fields))
	}

	names := make(map[string]FieldType, len(fields))
	for _, f := range fields {
		names[f.Name] = f.Type
	}
	for _, want := range []string{FieldLatitude, FieldLongitude, FieldTemperature, FieldBattery} {
		if names[want] != FieldTypeNumber {
			t.Errorf("default field %q missing or not number (got %q)", want, names[want])
		}
	}
}

func TestSQLiteRepository_End(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	p := createTestPhase(t, repo, "spring-grazing")

	if err := repo.End(ctx, p.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Active {
		t.Error("phase still active after End()")
	}
	if got.EndedAt == nil {
		t.Error("ended_at not stamped")
	}

	if err := repo.End(ctx, p.ID); !errors.Is(err, ErrPhaseEnded) {
		t.Errorf("second End() error = %v, want ErrPhaseEnded", err)
	}
	if err := repo.End(ctx, "no-such"); !errors.Is(err, ErrPhaseNotFound) {
		t.Errorf("End(missing) error = %v, want ErrPhaseNotFound", err)
	}
}

func TestSQLiteRepository_AddField(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	p := createTestPhase(t, repo, "spring-grazing")

	t.Run("adds custom field", func(t *testing.T) {
		f := &FieldDef{PhaseID: p.ID, Name: "heart_rate", Type: FieldTypeNumber}
		if err := repo.AddField(ctx, f); err != nil {
			t.Fatalf("AddField() error = %v", err)
		}

		fields, err := repo.ListFields(ctx, p.ID)
		if err != nil {
			t.Fatalf("ListFields() error = %v", err)
		}
		if len(fields) != 5 {
			t.Errorf("ListFields() returned %d fields, want 5", len(fields))
		}
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		f := &FieldDef{PhaseID: p.ID, Name: "heart_rate", Type: FieldTypeNumber}
		if err := repo.AddField(ctx, f); !errors.Is(err, ErrFieldExists) {
			t.Errorf("AddField() error = %v, want ErrFieldExists", err)
		}
	})

	t.Run("rejects reserved names", func(t *testing.T) {
		f := &FieldDef{PhaseID: p.ID, Name: FieldTemperature, Type: FieldTypeString}
		if err := repo.AddField(ctx, f); !errors.Is(err, ErrFieldReserved) {
			t.Errorf("AddField() error = %v, want ErrFieldReserved", err)
		}
	})

	t.Run("rejects invalid type", func(t *testing.T) {
		f := &FieldDef{PhaseID: p.ID, Name: "mood", Type: FieldType("emoji")}
		if err := repo.AddField(ctx, f); !errors.Is(err, ErrInvalidFieldType) {
			t.Errorf("AddField() error = %v, want ErrInvalidFieldType", err)
		}
	})
}

func TestSQLiteRepository_RemoveField(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	p := createTestPhase(t, repo, "spring-grazing")

	f := &FieldDef{PhaseID: p.ID, Name: "heart_rate", Type: FieldTypeNumber}
	if err := repo.AddField(ctx, f); err != nil {
		t.Fatalf("AddField() error = %v", err)
	}

	if err := repo.RemoveField(ctx, p.ID, "heart_rate"); err != nil {
		t.Fatalf("RemoveField() error = %v", err)
	}
	if err := repo.RemoveField(ctx, p.ID, "heart_rate"); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("second RemoveField() error = %v, want ErrFieldNotFound", err)
	}
	if err := repo.RemoveField(ctx, p.ID, FieldLatitude); !errors.Is(err, ErrFieldReserved) {
		t.Errorf("RemoveField(latitude) error = %v, want ErrFieldReserved", err)
	}
}
