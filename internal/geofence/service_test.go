package geofence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE geofences (
			id               TEXT PRIMARY KEY,
			phase_id         TEXT NOT NULL,
			name             TEXT NOT NULL,
			ring             TEXT NOT NULL,
			active           INTEGER NOT NULL DEFAULT 1,
			exit_alert_count INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);
		CREATE TABLE geofence_state (
			session_id  TEXT NOT NULL,
			geofence_id TEXT NOT NULL,
			outside     INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL,
			PRIMARY KEY (session_id, geofence_id)
		)`)
	if err != nil {
		t.Fatalf("creating tables: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := setupTestDB(t)
	return NewService(NewSQLiteRepository(db), NewSQLiteStateStore(db))
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.Create(ctx, "phase-1", "  ", square); err != ErrInvalidName {
		t.Errorf("expected ErrInvalidName for blank name, got %v", err)
	}
	if _, err := svc.Create(ctx, "phase-1", "open", square[:4]); err != ErrRingNotClosed {
		t.Errorf("expected ErrRingNotClosed, got %v", err)
	}

	g, err := svc.Create(ctx, "phase-1", "yard", square)
	if err != nil {
		t.Fatalf("creating geofence: %v", err)
	}
	if g.ID == "" || !g.Active || g.ExitAlertCount != 0 {
		t.Errorf("unexpected new geofence state: %+v", g)
	}

	got, err := svc.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("fetching geofence: %v", err)
	}
	if len(got.Ring) != len(square) || got.Ring[2] != square[2] {
		t.Errorf("ring did not round-trip: %+v", got.Ring)
	}
}

func TestService_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.Create(ctx, "phase-1", "yard", square)
	if err != nil {
		t.Fatalf("creating geofence: %v", err)
	}

	updated, err := svc.Update(ctx, g.ID, "yard-north", square, false)
	if err != nil {
		t.Fatalf("updating geofence: %v", err)
	}
	if updated.Name != "yard-north" || updated.Active {
		t.Errorf("update not applied: %+v", updated)
	}

	if _, err := svc.Update(ctx, "missing", "x", square, true); err != ErrGeofenceNotFound {
		t.Errorf("expected ErrGeofenceNotFound, got %v", err)
	}

	if err := svc.Delete(ctx, g.ID); err != nil {
		t.Fatalf("deleting geofence: %v", err)
	}
	if _, err := svc.Get(ctx, g.ID); err != ErrGeofenceNotFound {
		t.Errorf("expected ErrGeofenceNotFound after delete, got %v", err)
	}
}

func TestService_EvaluateTransitions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.Create(ctx, "phase-1", "yard", square)
	if err != nil {
		t.Fatalf("creating geofence: %v", err)
	}

	now := time.Now().UTC()
	eval := func(lat, lng float64) []ExitEvent {
		t.Helper()
		events, err := svc.Evaluate(ctx, "sess-1", "phase-1", lat, lng, now)
		if err != nil {
			t.Fatalf("evaluating: %v", err)
		}
		return events
	}
	exitCount := func() int64 {
		t.Helper()
		got, err := svc.Get(ctx, g.ID)
		if err != nil {
			t.Fatalf("fetching geofence: %v", err)
		}
		return got.ExitAlertCount
	}

	// inside -> outside -> inside fires exactly one exit alert.
	if events := eval(5, 5); len(events) != 0 {
		t.Fatalf("expected no events while inside, got %d", len(events))
	}
	events := eval(20, 20)
	if len(events) != 1 {
		t.Fatalf("expected one exit event, got %d", len(events))
	}
	if events[0].GeofenceID != g.ID || events[0].SessionID != "sess-1" {
		t.Errorf("unexpected event: %+v", events[0])
	}
	// Staying outside does not fire again.
	if events := eval(21, 21); len(events) != 0 {
		t.Fatalf("expected no repeat event while outside, got %d", len(events))
	}
	if events := eval(5, 5); len(events) != 0 {
		t.Fatalf("expected silent re-entry, got %d events", len(events))
	}
	if got := exitCount(); got != 1 {
		t.Errorf("expected exit count 1 after round trip, got %d", got)
	}

	// A second excursion counts again.
	eval(20, 20)
	if got := exitCount(); got != 2 {
		t.Errorf("expected exit count 2 after second excursion, got %d", got)
	}
}

func TestService_EvaluateIndependentGeofences(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Two overlapping geofences: the inner square sits inside the
	// outer one, so a point can be outside the inner while still
	// inside the outer.
	outer, err := svc.Create(ctx, "phase-1", "outer", square)
	if err != nil {
		t.Fatalf("creating outer: %v", err)
	}
	inner, err := svc.Create(ctx, "phase-1", "inner", []Point{
		{Lat: 4, Lng: 4}, {Lat: 4, Lng: 6}, {Lat: 6, Lng: 6}, {Lat: 6, Lng: 4}, {Lat: 4, Lng: 4},
	})
	if err != nil {
		t.Fatalf("creating inner: %v", err)
	}

	now := time.Now().UTC()
	// Inside both, then step out of the inner only.
	if _, err := svc.Evaluate(ctx, "sess-1", "phase-1", 5, 5, now); err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	events, err := svc.Evaluate(ctx, "sess-1", "phase-1", 8, 8, now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(events) != 1 || events[0].GeofenceID != inner.ID {
		t.Fatalf("expected exit from inner only, got %+v", events)
	}

	// Now leave the outer too: it alerts even though the session was
	// already flagged outside the inner.
	events, err = svc.Evaluate(ctx, "sess-1", "phase-1", 20, 20, now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(events) != 1 || events[0].GeofenceID != outer.ID {
		t.Fatalf("expected exit from outer, got %+v", events)
	}
}

func TestService_EvaluateIgnoresInactive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	g, err := svc.Create(ctx, "phase-1", "yard", square)
	if err != nil {
		t.Fatalf("creating geofence: %v", err)
	}
	if _, err := svc.Update(ctx, g.ID, g.Name, g.Ring, false); err != nil {
		t.Fatalf("deactivating geofence: %v", err)
	}

	events, err := svc.Evaluate(ctx, "sess-1", "phase-1", 20, 20, time.Now().UTC())
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected inactive geofence to be skipped, got %d events", len(events))
	}
}

func TestStateStore_DeleteForSession(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	states := NewSQLiteStateStore(db)

	now := time.Now().UTC()
	if err := states.SetOutside(ctx, "sess-1", "geo-1", true, now); err != nil {
		t.Fatalf("setting state: %v", err)
	}
	if err := states.SetOutside(ctx, "sess-2", "geo-1", true, now); err != nil {
		t.Fatalf("setting state: %v", err)
	}

	if err := states.DeleteForSession(ctx, "sess-1"); err != nil {
		t.Fatalf("deleting state: %v", err)
	}

	outside, err := states.IsOutside(ctx, "sess-1", "geo-1")
	if err != nil {
		t.Fatalf("querying state: %v", err)
	}
	if outside {
		t.Error("expected cleared state to read as inside")
	}
	outside, err = states.IsOutside(ctx, "sess-2", "geo-1")
	if err != nil {
		t.Fatalf("querying state: %v", err)
	}
	if !outside {
		t.Error("expected other session's state to survive")
	}
}
