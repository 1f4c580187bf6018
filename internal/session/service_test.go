package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldtrace/fieldtrace-core/internal/auth"
	"github.com/fieldtrace/fieldtrace-core/internal/device"
	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// mockCleaner records which sessions were cleaned.
type mockCleaner struct {
	cleaned []string
}

func (m *mockCleaner) DeleteForSession(_ context.Context, sessionID string) error {
	m.cleaned = append(m.cleaned, sessionID)
	return nil
}

type serviceFixture struct {
	svc     *Service
	devices *device.Registry
	cleaner *mockCleaner
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()
	db := setupTestDB(t)

	devices := device.NewRegistry(device.NewSQLiteRepository(db))
	cleaner := &mockCleaner{}
	svc := NewService(NewSQLiteRepository(db), devices, testSecret, time.Hour, cleaner)

	return &serviceFixture{svc: svc, devices: devices, cleaner: cleaner}
}

func registerDevice(t *testing.T, f *serviceFixture, name string, kind device.Kind) *device.Device {
	t.Helper()
	d, err := f.devices.Register(context.Background(), name, kind)
	if err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
	return d
}

func TestService_Attach(t *testing.T) {
	ctx := context.Background()

	t.Run("standalone device gets token and goes inuse", func(t *testing.T) {
		f := setupService(t)
		d := registerDevice(t, f, "tracker-a", device.KindStandalone)

		sess, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-7")
		if err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		if sess.Lifecycle != LifecycleInactive {
			t.Errorf("Lifecycle = %q, want inactive", sess.Lifecycle)
		}
		if sess.IdentityToken == nil || *sess.IdentityToken == "" {
			t.Fatal("standalone session has no identity token")
		}

		claims, err := auth.ParseDeviceToken(*sess.IdentityToken, testSecret)
		if err != nil {
			t.Fatalf("ParseDeviceToken() error = %v", err)
		}
		if claims.SessionID != sess.ID {
			t.Errorf("token sid = %q, want %q", claims.SessionID, sess.ID)
		}

		got, err := f.devices.GetDevice(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetDevice() error = %v", err)
		}
		if got.Availability != device.AvailabilityInUse {
			t.Errorf("device availability = %q, want inuse", got.Availability)
		}
	})

	t.Run("node device gets no token", func(t *testing.T) {
		f := setupService(t)
		d := registerDevice(t, f, "ear-tag-1", device.KindNode)

		sess, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-8")
		if err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		if sess.IdentityToken != nil {
			t.Error("node session has an identity token")
		}
	})

	t.Run("rejects unavailable device", func(t *testing.T) {
		f := setupService(t)
		d := registerDevice(t, f, "tracker-b", device.KindStandalone)
		if _, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-9"); err != nil {
			t.Fatalf("first Attach() error = %v", err)
		}

		_, err := f.svc.Attach(ctx, "phase-2", d.ID, "cow-10")
		if !errors.Is(err, ErrDeviceUnavailable) {
			t.Errorf("Attach() error = %v, want ErrDeviceUnavailable", err)
		}
	})

	t.Run("rejects duplicate alias in phase", func(t *testing.T) {
		f := setupService(t)
		d1 := registerDevice(t, f, "tracker-c", device.KindStandalone)
		d2 := registerDevice(t, f, "tracker-d", device.KindStandalone)

		if _, err := f.svc.Attach(ctx, "phase-1", d1.ID, "cow-7"); err != nil {
			t.Fatalf("first Attach() error = %v", err)
		}
		_, err := f.svc.Attach(ctx, "phase-1", d2.ID, "cow-7")
		if !errors.Is(err, ErrAliasTaken) {
			t.Errorf("Attach() error = %v, want ErrAliasTaken", err)
		}
	})

	t.Run("rejects blank alias", func(t *testing.T) {
		f := setupService(t)
		d := registerDevice(t, f, "tracker-e", device.KindStandalone)
		if _, err := f.svc.Attach(ctx, "phase-1", d.ID, "  "); !errors.Is(err, ErrInvalidAlias) {
			t.Errorf("Attach() error = %v, want ErrInvalidAlias", err)
		}
	})
}

func TestService_SetLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	d := registerDevice(t, f, "tracker-a", device.KindStandalone)

	sess, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-7")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if err := f.svc.SetLifecycle(ctx, sess.ID, LifecycleActive); err != nil {
		t.Fatalf("SetLifecycle(active) error = %v", err)
	}
	if err := f.svc.SetLifecycle(ctx, sess.ID, LifecycleInactive); err != nil {
		t.Fatalf("SetLifecycle(inactive) error = %v", err)
	}
	if err := f.svc.SetLifecycle(ctx, sess.ID, LifecycleArchived); err != nil {
		t.Fatalf("SetLifecycle(archived) error = %v", err)
	}
	if err := f.svc.SetLifecycle(ctx, sess.ID, LifecycleActive); !errors.Is(err, ErrTerminalState) {
		t.Errorf("SetLifecycle from archived error = %v, want ErrTerminalState", err)
	}
}

func TestService_Detach(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	d := registerDevice(t, f, "tracker-a", device.KindStandalone)

	sess, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-7")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if err := f.svc.Detach(ctx, sess.ID); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}

	got, err := f.svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() after detach error = %v (archived row should remain)", err)
	}
	if got.Lifecycle != LifecycleArchived {
		t.Errorf("Lifecycle = %q, want archived", got.Lifecycle)
	}

	if len(f.cleaner.cleaned) != 1 || f.cleaner.cleaned[0] != sess.ID {
		t.Errorf("cleaner calls = %v, want [%s]", f.cleaner.cleaned, sess.ID)
	}

	dev, err := f.devices.GetDevice(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if dev.Availability != device.AvailabilityAvailable {
		t.Errorf("device availability = %q, want available", dev.Availability)
	}
}

// TestService_DetachSweepsGeofenceState wires the real geofence state
// store as a cleaner, the way main assembles the service, and checks
// detach removes the session's state rows.
func TestService_DetachSweepsGeofenceState(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	if _, err := db.Exec(`
		CREATE TABLE geofence_state (
			session_id TEXT NOT NULL,
			geofence_id TEXT NOT NULL,
			outside INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, geofence_id)
		)`); err != nil {
		t.Fatalf("creating geofence_state: %v", err)
	}

	devices := device.NewRegistry(device.NewSQLiteRepository(db))
	states := geofence.NewSQLiteStateStore(db)
	svc := NewService(NewSQLiteRepository(db), devices, testSecret, time.Hour, states)

	d, err := devices.Register(ctx, "tracker-a", device.KindStandalone)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	sess, err := svc.Attach(ctx, "phase-1", d.ID, "cow-7")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if err := states.SetOutside(ctx, sess.ID, "fence-1", true, time.Now().UTC()); err != nil {
		t.Fatalf("SetOutside() error = %v", err)
	}

	if err := svc.Detach(ctx, sess.ID); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}

	var rows int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM geofence_state WHERE session_id = ?`, sess.ID,
	).Scan(&rows); err != nil {
		t.Fatalf("counting state rows: %v", err)
	}
	if rows != 0 {
		t.Errorf("geofence state rows after detach = %d, want 0", rows)
	}
}

func TestService_RotateToken(t *testing.T) {
	ctx := context.Background()

	t.Run("rotation revokes the previous token", func(t *testing.T) {
		f := setupService(t)
		d := registerDevice(t, f, "tracker-a", device.KindStandalone)

		sess, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-7")
		if err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		oldToken := *sess.IdentityToken

		newToken, err := f.svc.RotateToken(ctx, sess.ID)
		if err != nil {
			t.Fatalf("RotateToken() error = %v", err)
		}
		if newToken == oldToken {
			t.Fatal("rotated token equals previous token")
		}

		if _, err := f.svc.ResolveToken(ctx, newToken); err != nil {
			t.Errorf("ResolveToken(new) error = %v", err)
		}
		if _, err := f.svc.ResolveToken(ctx, oldToken); !errors.Is(err, auth.ErrTokenRevoked) {
			t.Errorf("ResolveToken(old) error = %v, want ErrTokenRevoked", err)
		}
	})

	t.Run("node sessions are not addressable", func(t *testing.T) {
		f := setupService(t)
		d := registerDevice(t, f, "ear-tag-1", device.KindNode)

		sess, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-8")
		if err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		if _, err := f.svc.RotateToken(ctx, sess.ID); !errors.Is(err, ErrNotAddressable) {
			t.Errorf("RotateToken() error = %v, want ErrNotAddressable", err)
		}
	})
}

func TestService_ResolveToken(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	d := registerDevice(t, f, "tracker-a", device.KindStandalone)

	sess, err := f.svc.Attach(ctx, "phase-1", d.ID, "cow-7")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	got, err := f.svc.ResolveToken(ctx, *sess.IdentityToken)
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("resolved session = %q, want %q", got.ID, sess.ID)
	}

	if _, err := f.svc.ResolveToken(ctx, "not.a.jwt"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Errorf("garbage token error = %v, want ErrTokenInvalid", err)
	}

	// A well-formed token signed for a session that never existed.
	forged, err := auth.GenerateDeviceToken("ghost-session", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateDeviceToken() error = %v", err)
	}
	if _, err := f.svc.ResolveToken(ctx, forged); !errors.Is(err, auth.ErrTokenRevoked) {
		t.Errorf("ghost session error = %v, want ErrTokenRevoked", err)
	}
}

func TestService_EndPhase(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	d1 := registerDevice(t, f, "tracker-a", device.KindStandalone)
	d2 := registerDevice(t, f, "tracker-b", device.KindStandalone)

	s1, err := f.svc.Attach(ctx, "phase-1", d1.ID, "cow-1")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	s2, err := f.svc.Attach(ctx, "phase-1", d2.ID, "cow-2")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	archived, err := f.svc.EndPhase(ctx, "phase-1")
	if err != nil {
		t.Fatalf("EndPhase() error = %v", err)
	}
	if archived != 2 {
		t.Errorf("EndPhase() archived = %d, want 2", archived)
	}

	for _, id := range []string{s1.ID, s2.ID} {
		got, err := f.svc.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if got.Lifecycle != LifecycleArchived {
			t.Errorf("session %s lifecycle = %q, want archived", id, got.Lifecycle)
		}
	}
	for _, id := range []string{d1.ID, d2.ID} {
		dev, err := f.devices.GetDevice(ctx, id)
		if err != nil {
			t.Fatalf("GetDevice(%s) error = %v", id, err)
		}
		if dev.Availability != device.AvailabilityAvailable {
			t.Errorf("device %s availability = %q, want available", id, dev.Availability)
		}
	}
	if len(f.cleaner.cleaned) != 2 {
		t.Errorf("cleaner calls = %d, want 2", len(f.cleaner.cleaned))
	}
}
