package geofence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxNameLength = 128

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

// Service validates geofence mutations and evaluates positions against
// the active geofences of a phase.
type Service struct {
	repo   Repository
	states StateStore
	logger Logger
}

// NewService creates a geofence service.
func NewService(repo Repository, states StateStore) *Service {
	return &Service{
		repo:   repo,
		states: states,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Create validates and stores a new geofence for the phase.
func (s *Service) Create(ctx context.Context, phaseID, name string, ring []Point) (*Geofence, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	if err := ValidateRing(ring); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g := &Geofence{
		ID:        uuid.NewString(),
		PhaseID:   phaseID,
		Name:      name,
		Ring:      ring,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}

	s.logger.Info("geofence created", "geofence_id", g.ID, "phase_id", phaseID, "name", name)
	return g, nil
}

// Get retrieves a geofence by ID.
func (s *Service) Get(ctx context.Context, id string) (*Geofence, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForPhase returns every geofence of the phase.
func (s *Service) ListForPhase(ctx context.Context, phaseID string) ([]Geofence, error) {
	return s.repo.ListForPhase(ctx, phaseID)
}

// Update validates and rewrites a geofence's name, ring and active
// flag. The exit counter is untouched.
func (s *Service) Update(ctx context.Context, id, name string, ring []Point, active bool) (*Geofence, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	if err := ValidateRing(ring); err != nil {
		return nil, err
	}

	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Name = name
	g.Ring = ring
	g.Active = active
	g.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Delete removes a geofence and its state rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("geofence deleted", "geofence_id", id)
	return nil
}

// Evaluate tests the position against every active geofence of the
// phase and applies the transition rules: the first position observed
// outside a geofence fires an exit event and bumps its counter, and
// nothing fires again until the session has re-entered. Re-entry only
// clears the flag.
//
// The returned events have already been counted; callers publish them.
func (s *Service) Evaluate(ctx context.Context, sessionID, phaseID string, lat, lng float64, at time.Time) ([]ExitEvent, error) {
	fences, err := s.repo.ListActiveForPhase(ctx, phaseID)
	if err != nil {
		return nil, fmt.Errorf("loading active geofences: %w", err)
	}

	var events []ExitEvent
	for _, g := range fences {
		inside := Contains(g.Ring, lat, lng)
		wasOutside, err := s.states.IsOutside(ctx, sessionID, g.ID)
		if err != nil {
			return nil, err
		}

		switch {
		case !inside && !wasOutside:
			if err := s.states.SetOutside(ctx, sessionID, g.ID, true, at); err != nil {
				return nil, err
			}
			if err := s.repo.IncrementExitCount(ctx, g.ID); err != nil {
				return nil, err
			}
			events = append(events, ExitEvent{
				GeofenceID:   g.ID,
				GeofenceName: g.Name,
				PhaseID:      g.PhaseID,
				SessionID:    sessionID,
				Latitude:     lat,
				Longitude:    lng,
				OccurredAt:   at,
			})
			s.logger.Warn("geofence exit",
				"geofence_id", g.ID, "session_id", sessionID, "lat", lat, "lng", lng)

		case inside && wasOutside:
			if err := s.states.SetOutside(ctx, sessionID, g.ID, false, at); err != nil {
				return nil, err
			}
			s.logger.Info("geofence re-entry",
				"geofence_id", g.ID, "session_id", sessionID)
		}
	}
	return events, nil
}
