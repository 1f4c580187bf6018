package device

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxNameLength bounds registered device names.
const maxNameLength = 128

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups;
// ingestion resolves sessions to devices on every uplink, so lookups
// should not hit SQLite each time.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating mutations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = &d
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Register validates and creates a new device in the available state.
// Returns ErrDeviceExists if the name is already registered.
func (r *Registry) Register(ctx context.Context, name string, kind Kind) (*Device, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	now := time.Now().UTC()
	d := &Device{
		ID:           uuid.NewString(),
		Name:         name,
		Kind:         kind,
		Availability: AvailabilityAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	cached := *d
	r.cache[d.ID] = &cached
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "device_id", d.ID, "name", d.Name, "kind", d.Kind)

	copied := *d
	return &copied, nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		copied := *cached
		return &copied, nil
	}

	// Fall back to the repository (might be a device created elsewhere).
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	stored := *d
	r.cache[d.ID] = &stored
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices retrieves all devices, sorted by the repository's order.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}

// SetAvailability transitions a device's availability state.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) SetAvailability(ctx context.Context, id string, state Availability) error {
	if !state.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAvailability, state)
	}

	if err := r.repo.SetAvailability(ctx, id, state); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		cached.Availability = state
		cached.UpdatedAt = time.Now().UTC()
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device availability changed", "device_id", id, "state", state)
	return nil
}

// Remove deletes a device from the registry.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device removed", "device_id", id)
	return nil
}
