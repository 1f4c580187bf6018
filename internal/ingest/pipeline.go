package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
	"github.com/fieldtrace/fieldtrace-core/internal/phase"
	"github.com/fieldtrace/fieldtrace-core/internal/relay"
	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/telemetry"
)

// TxBeginner starts SQL transactions. Satisfied by *sql.DB and by the
// database wrapper.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// SessionResolver authenticates identity tokens.
type SessionResolver interface {
	ResolveToken(ctx context.Context, token string) (*session.Session, error)
}

// Notifier receives post-commit events. Implementations must not
// block; the pipeline calls them synchronously on the request path.
type Notifier interface {
	TelemetryAccepted(rec *telemetry.Record, sess *session.Session)
	GeofenceExited(ev geofence.ExitEvent)
}

// Logger defines the logging interface used by the Pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the outcome of an accepted ingestion.
type Result struct {
	Record  *telemetry.Record
	Session *session.Session
	Events  []geofence.ExitEvent
}

// Pipeline is the shared core behind both ingestion entry points. All
// validation happens before any write; the telemetry insert, session
// contact update and relay upsert then commit in one transaction.
type Pipeline struct {
	db        TxBeginner
	resolver  SessionResolver
	sessions  *session.SQLiteRepository
	phases    phase.Repository
	telemetry *telemetry.SQLiteStore
	relays    *relay.SQLiteIndex
	geofences *geofence.Service

	notifiers []Notifier
	logger    Logger

	// replayJitter spreads receivedAt forward by a random amount so
	// replayed batches do not collapse onto one timestamp. Zero
	// disables it.
	replayJitter time.Duration

	now func() time.Time
}

// NewPipeline wires the ingestion core.
func NewPipeline(
	db TxBeginner,
	resolver SessionResolver,
	sessions *session.SQLiteRepository,
	phases phase.Repository,
	tel *telemetry.SQLiteStore,
	relays *relay.SQLiteIndex,
	geofences *geofence.Service,
) *Pipeline {
	return &Pipeline{
		db:        db,
		resolver:  resolver,
		sessions:  sessions,
		phases:    phases,
		telemetry: tel,
		relays:    relays,
		geofences: geofences,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// SetReplayJitter configures the forward receivedAt jitter.
func (p *Pipeline) SetReplayJitter(d time.Duration) {
	if d > 0 {
		p.replayJitter = d
	}
}

// AddNotifier registers a post-commit event sink.
func (p *Pipeline) AddNotifier(n Notifier) {
	p.notifiers = append(p.notifiers, n)
}

// IngestStandalone accepts a payload from a standalone device
// authenticated by its own identity token.
func (p *Pipeline) IngestStandalone(ctx context.Context, token string, payload *Payload) (*Result, error) {
	sess, err := p.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return p.ingest(ctx, sess, nil, payload)
}

// IngestGateway accepts a payload authenticated by a gateway's token.
// Without a node alias the telemetry is the gateway's own. With one,
// the record lands on the node's session, the relay index is updated,
// and the gateway's last contact is touched without counting a
// message.
func (p *Pipeline) IngestGateway(ctx context.Context, token string, payload *Payload) (*Result, error) {
	gw, err := p.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	if payload.NodeAlias == "" {
		return p.ingest(ctx, gw, nil, payload)
	}

	node, err := p.sessions.GetByPhaseAndAlias(ctx, gw.PhaseID, payload.NodeAlias)
	if err != nil {
		if err == session.ErrSessionNotFound {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	if node.Lifecycle != session.LifecycleActive {
		return nil, ErrSessionInactive
	}
	return p.ingest(ctx, node, gw, payload)
}

// authenticate resolves the token and enforces the active lifecycle.
func (p *Pipeline) authenticate(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	sess, err := p.resolver.ResolveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Lifecycle != session.LifecycleActive {
		return nil, ErrSessionInactive
	}
	return sess, nil
}

// ingest runs the shared core: project, stamp, write atomically, then
// evaluate geofences and notify. target owns the record; via is the
// relaying gateway, nil when the device spoke for itself.
func (p *Pipeline) ingest(ctx context.Context, target, via *session.Session, payload *Payload) (*Result, error) {
	schema, err := p.loadSchema(ctx, target.PhaseID)
	if err != nil {
		return nil, err
	}
	projected, err := schema.Project(payload.Fields)
	if err != nil {
		return nil, err
	}

	receivedAt := p.now().UTC()
	if p.replayJitter > 0 {
		receivedAt = receivedAt.Add(time.Duration(rand.Int63n(int64(p.replayJitter))))
	}
	eventTime := receivedAt
	if payload.CreatedAt != nil {
		eventTime = payload.CreatedAt.UTC()
	}

	rec := &telemetry.Record{
		SessionID:  target.ID,
		EventTime:  eventTime,
		ReceivedAt: receivedAt,
		Fields:     projected,
	}
	rec.Latitude = popNumber(projected, phase.FieldLatitude)
	rec.Longitude = popNumber(projected, phase.FieldLongitude)
	rec.Temperature = popNumber(projected, phase.FieldTemperature)
	rec.Battery = popNumber(projected, phase.FieldBattery)

	if err := p.commit(ctx, rec, target, via, receivedAt); err != nil {
		return nil, err
	}

	res := &Result{Record: rec, Session: target}

	// Geofence evaluation and notification run after the commit; a
	// failure here no longer rejects the already-accepted record.
	if rec.Latitude != nil && rec.Longitude != nil {
		events, err := p.geofences.Evaluate(ctx, target.ID, target.PhaseID, *rec.Latitude, *rec.Longitude, receivedAt)
		if err != nil {
			p.logger.Error("geofence evaluation failed",
				"session_id", target.ID, "error", err)
		} else {
			res.Events = events
		}
	}

	for _, n := range p.notifiers {
		n.TelemetryAccepted(rec, target)
		for _, ev := range res.Events {
			n.GeofenceExited(ev)
		}
	}

	p.logger.Debug("telemetry accepted",
		"session_id", target.ID, "record_id", rec.ID, "relayed", via != nil)
	return res, nil
}

// commit writes the record, the target's contact update and the relay
// upsert in one transaction.
func (p *Pipeline) commit(ctx context.Context, rec *telemetry.Record, target, via *session.Session, at time.Time) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := p.telemetry.WithTx(tx).Insert(ctx, rec); err != nil {
		return err
	}
	if err := p.sessions.WithTx(tx).RecordContact(ctx, target.ID, at, rec.Temperature, rec.Battery, true); err != nil {
		return err
	}
	if via != nil {
		if err := p.relays.WithTx(tx).Record(ctx, via.ID, target.ID, at); err != nil {
			return err
		}
		// Relayed traffic touches the gateway's last contact but does
		// not count towards its own message total.
		if err := p.sessions.WithTx(tx).RecordContact(ctx, via.ID, at, nil, nil, false); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ingest transaction: %w", err)
	}
	return nil
}

func (p *Pipeline) loadSchema(ctx context.Context, phaseID string) (phase.Schema, error) {
	fields, err := p.phases.ListFields(ctx, phaseID)
	if err != nil {
		return nil, err
	}
	return phase.BuildSchema(fields), nil
}

// popNumber lifts a reserved numeric field out of the projected map
// into its dedicated column.
func popNumber(fields map[string]phase.FieldValue, name string) *float64 {
	v, ok := fields[name]
	if !ok || v.Type != phase.FieldTypeNumber {
		return nil
	}
	delete(fields, name)
	n := v.Number
	return &n
}
