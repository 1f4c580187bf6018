package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fieldtrace/fieldtrace-core/internal/auth"
	"github.com/fieldtrace/fieldtrace-core/internal/device"
	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/config"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/logging"
	"github.com/fieldtrace/fieldtrace-core/internal/ingest"
	"github.com/fieldtrace/fieldtrace-core/internal/phase"
	"github.com/fieldtrace/fieldtrace-core/internal/relay"
	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/stats"
	"github.com/fieldtrace/fieldtrace-core/internal/telemetry"
)

const testSecret = "api-test-secret-0123456789abcdef"

// setupTestDB creates an in-memory database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			availability TEXT NOT NULL DEFAULT 'available',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
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
			phase_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			UNIQUE (phase_id, name)
		);
		CREATE TABLE device_phase_sessions (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			phase_id TEXT NOT NULL,
			alias TEXT NOT NULL,
			lifecycle TEXT NOT NULL DEFAULT 'inactive',
			message_count INTEGER NOT NULL DEFAULT 0,
			last_contact_at TEXT,
			last_temperature REAL,
			last_battery REAL,
			identity_token TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (phase_id, alias)
		);
		CREATE TABLE gateway_links (
			gateway_session_id TEXT NOT NULL,
			node_session_id TEXT NOT NULL,
			last_relay_at TEXT NOT NULL,
			PRIMARY KEY (gateway_session_id, node_session_id)
		);
		CREATE TABLE telemetry_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			event_time TEXT NOT NULL,
			received_at TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			temperature REAL,
			battery REAL,
			fields TEXT NOT NULL DEFAULT '{}'
		);
		CREATE TABLE geofences (
			id TEXT PRIMARY KEY,
			phase_id TEXT NOT NULL,
			name TEXT NOT NULL,
			ring TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			exit_alert_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE geofence_state (
			session_id TEXT NOT NULL,
			geofence_id TEXT NOT NULL,
			outside INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, geofence_id)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}
	return db
}

// newTestServer wires a server over an in-memory database. The
// returned handler carries the full middleware and route stack.
func newTestServer(t *testing.T, capability auth.CapabilityFunc) http.Handler {
	t.Helper()
	db := setupTestDB(t)

	devices := device.NewRegistry(device.NewSQLiteRepository(db))
	sessRepo := session.NewSQLiteRepository(db)
	phases := phase.NewSQLiteRepository(db)
	tel := telemetry.NewSQLiteStore(db)
	relays := relay.NewSQLiteIndex(db)
	geofences := geofence.NewService(geofence.NewSQLiteRepository(db), geofence.NewSQLiteStateStore(db))
	sessions := session.NewService(sessRepo, devices, testSecret, time.Hour, relays)
	pipeline := ingest.NewPipeline(db, sessions, sessRepo, phases, tel, relays, geofences)

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config:     config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     logger,
		Devices:    devices,
		Phases:     phases,
		Sessions:   sessions,
		Geofences:  geofences,
		Telemetry:  tel,
		Stats:      stats.NewEngine(sessRepo, tel),
		Pipeline:   pipeline,
		Capability: capability,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	// The hub normally starts inside Start(); tests drive the router
	// directly, so give it a hub without the HTTP listener.
	srv.hub = NewHub(srv.wsCfg, srv.logger)

	return srv.buildRouter()
}

// doRequest performs a request against the handler and returns the recorder.
func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody unmarshals the recorder body into out.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version field = %v, want test", resp["version"])
	}
}

func TestCapabilityGate(t *testing.T) {
	h := newTestServer(t, auth.DenyAll)

	// Mutations are denied.
	rec := doRequest(t, h, http.MethodPost, "/api/v1/devices",
		map[string]string{"name": "tracker-1", "kind": "standalone"},
		map[string]string{"X-Operator-ID": "op-1"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	var apiErr Error
	decodeBody(t, rec, &apiErr)
	if apiErr.Code != ErrCodeForbidden {
		t.Errorf("error code = %q, want %q", apiErr.Code, ErrCodeForbidden)
	}

	// Reads pass without the gate.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/devices", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", rec.Code)
	}
}

func TestDeviceRegistryEndpoints(t *testing.T) {
	h := newTestServer(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/devices",
		map[string]string{"name": "tracker-1", "kind": "standalone"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	var dev device.Device
	decodeBody(t, rec, &dev)
	if dev.ID == "" {
		t.Fatal("expected device ID")
	}
	if dev.Availability != device.AvailabilityAvailable {
		t.Errorf("availability = %q, want available", dev.Availability)
	}

	// Duplicate names are rejected.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/devices",
		map[string]string{"name": "tracker-1", "kind": "standalone"}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	// Take the device out of service.
	rec = doRequest(t, h, http.MethodPatch, "/api/v1/devices/"+dev.ID+"/availability",
		map[string]string{"availability": "unavailable"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("availability status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &dev)
	if dev.Availability != device.AvailabilityUnavailable {
		t.Errorf("availability = %q, want unavailable", dev.Availability)
	}

	// Unknown device returns 404.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/devices/no-such-device", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

// TestAttachIngestRoundTrip walks the primary flow: create a phase,
// register a device, attach it, activate the session, ingest telemetry
// with the identity token, then read it back through records and graph.
func TestAttachIngestRoundTrip(t *testing.T) {
	h := newTestServer(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/phases",
		map[string]string{"name": "spring-graze"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create phase status = %d: %s", rec.Code, rec.Body.String())
	}
	var ph phase.Phase
	decodeBody(t, rec, &ph)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/devices",
		map[string]string{"name": "tracker-1", "kind": "standalone"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var dev device.Device
	decodeBody(t, rec, &dev)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/phases/"+ph.ID+"/sessions",
		map[string]string{"device_id": dev.ID, "alias": "cow-7"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("attach status = %d: %s", rec.Code, rec.Body.String())
	}
	var attachResp struct {
		Session       session.Session `json:"session"`
		IdentityToken string          `json:"identity_token"`
	}
	decodeBody(t, rec, &attachResp)
	if attachResp.IdentityToken == "" {
		t.Fatal("expected identity token at attach time")
	}
	sessID := attachResp.Session.ID

	// The token is shown exactly once; a later read must not carry it.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+sessID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(attachResp.IdentityToken)) {
		t.Error("identity token leaked in session read")
	}

	rec = doRequest(t, h, http.MethodPatch, "/api/v1/sessions/"+sessID+"/lifecycle",
		map[string]string{"lifecycle": "active"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lifecycle status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/ingest/standalone",
		map[string]any{"temperature": 21.5, "battery": 88, "latitude": 51.5, "longitude": -0.12},
		map[string]string{"Authorization": "Bearer " + attachResp.IdentityToken})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body.String())
	}
	var ingestResp struct {
		RecordID   int64  `json:"record_id"`
		SessionID  string `json:"session_id"`
		ExitAlerts int    `json:"exit_alerts"`
	}
	decodeBody(t, rec, &ingestResp)
	if ingestResp.RecordID == 0 {
		t.Error("expected stored record ID")
	}
	if ingestResp.SessionID != sessID {
		t.Errorf("session_id = %q, want %q", ingestResp.SessionID, sessID)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+sessID+"/records", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("records status = %d: %s", rec.Code, rec.Body.String())
	}
	var recordsResp struct {
		Count   int                `json:"count"`
		Records []telemetry.Record `json:"records"`
	}
	decodeBody(t, rec, &recordsResp)
	if recordsResp.Count != 1 {
		t.Fatalf("record count = %d, want 1", recordsResp.Count)
	}
	if recordsResp.Records[0].Temperature == nil || *recordsResp.Records[0].Temperature != 21.5 {
		t.Errorf("temperature = %v, want 21.5", recordsResp.Records[0].Temperature)
	}

	rec = doRequest(t, h, http.MethodGet,
		"/api/v1/sessions/"+sessID+"/graph?metric=temperature&range=hour&points=4", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("graph status = %d: %s", rec.Code, rec.Body.String())
	}
	var graph stats.Graph
	decodeBody(t, rec, &graph)
	if !graph.IsEnough {
		t.Error("expected is_enough after ingesting a record")
	}
	if len(graph.Buckets) != 4 {
		t.Errorf("buckets = %d, want 4", len(graph.Buckets))
	}

	// Map feed sees the position.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/phases/"+ph.ID+"/map/positions", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("positions status = %d", rec.Code)
	}
	var posResp struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &posResp)
	if posResp.Count != 1 {
		t.Errorf("position count = %d, want 1", posResp.Count)
	}
}

func TestIngestAuthFailures(t *testing.T) {
	h := newTestServer(t, nil)

	body := map[string]any{"temperature": 20.0}

	// No bearer token.
	rec := doRequest(t, h, http.MethodPost, "/api/v1/ingest/standalone", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", rec.Code)
	}

	// Garbage token.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/ingest/standalone", body,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestGeofenceEndpoints(t *testing.T) {
	h := newTestServer(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/phases",
		map[string]string{"name": "spring-graze"}, nil)
	var ph phase.Phase
	decodeBody(t, rec, &ph)

	square := []geofence.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0}, {Lat: 0, Lng: 0}}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/phases/"+ph.ID+"/geofences",
		map[string]any{"name": "north-paddock", "ring": square}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var fence geofence.Geofence
	decodeBody(t, rec, &fence)
	if !fence.Active {
		t.Error("new geofence should be active")
	}

	// An open ring is rejected.
	open := square[:len(square)-1]
	rec = doRequest(t, h, http.MethodPost, "/api/v1/phases/"+ph.ID+"/geofences",
		map[string]any{"name": "broken", "ring": open}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("open ring status = %d, want 400", rec.Code)
	}

	// Deactivate via update.
	rec = doRequest(t, h, http.MethodPut, "/api/v1/geofences/"+fence.ID,
		map[string]any{"name": "north-paddock", "ring": square, "active": false}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &fence)
	if fence.Active {
		t.Error("geofence should be inactive after update")
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/geofences/"+fence.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/geofences/"+fence.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestGraphValidation(t *testing.T) {
	h := newTestServer(t, nil)

	rec := doRequest(t, h, http.MethodGet,
		"/api/v1/sessions/any/graph?metric=humidity&range=hour", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad metric status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet,
		"/api/v1/sessions/any/graph?metric=temperature&range=fortnight", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad range status = %d, want 400", rec.Code)
	}
}

func TestEndPhaseArchivesSessions(t *testing.T) {
	h := newTestServer(t, nil)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/phases",
		map[string]string{"name": "spring-graze"}, nil)
	var ph phase.Phase
	decodeBody(t, rec, &ph)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/devices",
		map[string]string{"name": "tracker-1", "kind": "standalone"}, nil)
	var dev device.Device
	decodeBody(t, rec, &dev)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/phases/"+ph.ID+"/sessions",
		map[string]string{"device_id": dev.ID, "alias": "cow-7"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("attach status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/phases/"+ph.ID+"/end", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("end phase status = %d: %s", rec.Code, rec.Body.String())
	}
	var endResp struct {
		Archived int `json:"sessions_archived"`
	}
	decodeBody(t, rec, &endResp)
	if endResp.Archived != 1 {
		t.Errorf("sessions_archived = %d, want 1", endResp.Archived)
	}

	// The device is back in the available pool.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/devices/"+dev.ID, nil, nil)
	decodeBody(t, rec, &dev)
	if dev.Availability != device.AvailabilityAvailable {
		t.Errorf("availability = %q, want available", dev.Availability)
	}
}
