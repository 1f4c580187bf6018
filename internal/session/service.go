package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldtrace/fieldtrace-core/internal/auth"
	"github.com/fieldtrace/fieldtrace-core/internal/device"
)

// maxAliasLength bounds phase-scoped aliases.
const maxAliasLength = 64

// DeviceRegistry is the slice of the device registry the session
// service needs.
type DeviceRegistry interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	SetAvailability(ctx context.Context, id string, state device.Availability) error
}

// Cleaner removes per-session rows owned by another package. The relay
// index and the geofence state table both implement it; detach and
// phase teardown fan out to every registered cleaner.
type Cleaner interface {
	DeleteForSession(ctx context.Context, sessionID string) error
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service implements device-phase session lifecycle management.
type Service struct {
	repo     Repository
	devices  DeviceRegistry
	cleaners []Cleaner

	jwtSecret string
	tokenTTL  time.Duration

	logger Logger
}

// NewService creates a session service. Cleaners are invoked on detach
// and phase teardown to drop relay links and geofence state.
func NewService(repo Repository, devices DeviceRegistry, jwtSecret string, tokenTTL time.Duration, cleaners ...Cleaner) *Service {
	return &Service{
		repo:      repo,
		devices:   devices,
		cleaners:  cleaners,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Attach binds an available device to a phase under a unique alias.
//
// The session starts inactive; the device moves to inuse. Standalone and
// gateway devices receive a signed identity token bound to the new
// session; nodes receive none, since they only ever report through a
// gateway.
func (s *Service) Attach(ctx context.Context, phaseID, deviceID, alias string) (*Session, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" || len(alias) > maxAliasLength {
		return nil, ErrInvalidAlias
	}

	d, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.Availability != device.AvailabilityAvailable {
		return nil, fmt.Errorf("%w: device %s is %s", ErrDeviceUnavailable, d.ID, d.Availability)
	}

	sess := &Session{
		ID:        uuid.NewString(),
		DeviceID:  d.ID,
		PhaseID:   phaseID,
		Alias:     alias,
		Lifecycle: LifecycleInactive,
	}

	if d.Kind.Addressable() {
		token, err := auth.GenerateDeviceToken(sess.ID, s.jwtSecret, s.tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issuing identity token: %w", err)
		}
		sess.IdentityToken = &token
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	if err := s.devices.SetAvailability(ctx, d.ID, device.AvailabilityInUse); err != nil {
		return nil, fmt.Errorf("marking device in use: %w", err)
	}

	s.logger.Info("session attached",
		"session_id", sess.ID,
		"phase_id", phaseID,
		"device_id", d.ID,
		"alias", alias,
		"kind", d.Kind,
	)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByPhase retrieves all sessions attached to a phase.
func (s *Service) ListByPhase(ctx context.Context, phaseID string) ([]Session, error) {
	return s.repo.ListByPhase(ctx, phaseID)
}

// SetLifecycle transitions a session between states. Inactive and
// active swap freely; archived is one-way and terminal.
func (s *Service) SetLifecycle(ctx context.Context, id string, target Lifecycle) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidLifecycle, target)
	}

	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !sess.Lifecycle.CanTransition(target) {
		return ErrTerminalState
	}

	if err := s.repo.UpdateLifecycle(ctx, id, target); err != nil {
		return err
	}

	s.logger.Info("session lifecycle changed",
		"session_id", id,
		"from", sess.Lifecycle,
		"to", target,
	)
	return nil
}

// Detach ends a device's participation in a phase: the session archives,
// relay links and geofence state for it are dropped, and the device
// returns to the available pool. The archived row is kept so telemetry
// history and statistics remain queryable.
func (s *Service) Detach(ctx context.Context, id string) error {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if sess.Lifecycle != LifecycleArchived {
		if err := s.repo.UpdateLifecycle(ctx, id, LifecycleArchived); err != nil {
			return err
		}
	}

	for _, c := range s.cleaners {
		if err := c.DeleteForSession(ctx, id); err != nil {
			return fmt.Errorf("cleaning session state: %w", err)
		}
	}

	if err := s.devices.SetAvailability(ctx, sess.DeviceID, device.AvailabilityAvailable); err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			return fmt.Errorf("releasing device: %w", err)
		}
	}

	s.logger.Info("session detached", "session_id", id, "device_id", sess.DeviceID)
	return nil
}

// RotateToken reissues a session's identity token. The previous token
// stops verifying immediately because ResolveToken compares against the
// stored value. Node-backed sessions have no token to rotate.
func (s *Service) RotateToken(ctx context.Context, id string) (string, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	d, err := s.devices.GetDevice(ctx, sess.DeviceID)
	if err != nil {
		return "", err
	}
	if !d.Kind.Addressable() {
		return "", ErrNotAddressable
	}

	token, err := auth.GenerateDeviceToken(sess.ID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issuing identity token: %w", err)
	}
	if err := s.repo.UpdateToken(ctx, id, token); err != nil {
		return "", err
	}

	s.logger.Info("session token rotated", "session_id", id)
	return token, nil
}

// ResolveToken verifies a presented device token and returns its
// session. Verification is two-step: signature and expiry via the JWT
// library, then equality against the session's stored token so rotation
// revokes older, still-unexpired tokens.
func (s *Service) ResolveToken(ctx context.Context, tokenString string) (*Session, error) {
	claims, err := auth.ParseDeviceToken(tokenString, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	sess, err := s.repo.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: session gone", auth.ErrTokenRevoked)
		}
		return nil, err
	}

	if sess.IdentityToken == nil || *sess.IdentityToken != tokenString {
		return nil, auth.ErrTokenRevoked
	}

	return sess, nil
}

// EndPhase archives every session in a phase, drops their relay links
// and geofence state, and releases the devices back to the pool. Used
// when a monitoring phase wraps up.
func (s *Service) EndPhase(ctx context.Context, phaseID string) (int64, error) {
	sessions, err := s.repo.ListByPhase(ctx, phaseID)
	if err != nil {
		return 0, err
	}

	archived, err := s.repo.ArchiveAllForPhase(ctx, phaseID)
	if err != nil {
		return 0, err
	}

	for _, sess := range sessions {
		if sess.Lifecycle == LifecycleArchived {
			continue
		}
		for _, c := range s.cleaners {
			if err := c.DeleteForSession(ctx, sess.ID); err != nil {
				return archived, fmt.Errorf("cleaning session %s: %w", sess.ID, err)
			}
		}
		if err := s.devices.SetAvailability(ctx, sess.DeviceID, device.AvailabilityAvailable); err != nil {
			if !errors.Is(err, device.ErrDeviceNotFound) {
				return archived, fmt.Errorf("releasing device %s: %w", sess.DeviceID, err)
			}
		}
	}

	s.logger.Info("phase ended", "phase_id", phaseID, "sessions_archived", archived)
	return archived, nil
}
