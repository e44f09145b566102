package fleet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"drone-fleet/internal/drone"
	domainerrors "drone-fleet/internal/errors"
)

type SessionConfig struct {
	ProximityInterval  time.Duration
	ProximityRadiusDeg float64
	InboxSize          int
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ProximityInterval:  5 * time.Second,
		ProximityRadiusDeg: 0.1,
		InboxSize:          64,
	}
}

// Registry maps each drone id to its live session. The last registration for
// an id wins; the session it replaces is closed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	running  sync.WaitGroup

	store      Store
	reports    ReportSubmitter
	cache      LocationCache
	dispatched *DispatchedSet
	cfg        SessionConfig
	logger     *slog.Logger
}

// NewRegistry builds an empty registry. cache may be nil.
func NewRegistry(store Store, reports ReportSubmitter, cache LocationCache, dispatched *DispatchedSet, cfg SessionConfig, logger *slog.Logger) *Registry {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultSessionConfig().InboxSize
	}
	if cfg.ProximityInterval <= 0 {
		cfg.ProximityInterval = DefaultSessionConfig().ProximityInterval
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		store:      store,
		reports:    reports,
		cache:      cache,
		dispatched: dispatched,
		cfg:        cfg,
		logger:     logger,
	}
}

// Register stores the drone record as active and binds conn to a new
// session. The caller runs the session with Run.
func (r *Registry) Register(ctx context.Context, conn Conn, d *drone.Drone) (*Session, error) {
	existing, err := r.store.FindDrone(ctx, d.ID)
	switch {
	case err == nil:
		d.CreatedAt = existing.CreatedAt
	case domainerrors.IsNotFound(err):
		r.logger.Info("new drone registering", slog.String("drone_id", d.ID))
	default:
		return nil, domainerrors.NewStore("failed to look up drone", err)
	}

	d.IsActive = true
	d.UpdatedAt = time.Now()
	if err := r.store.UpsertDrone(ctx, d); err != nil {
		return nil, domainerrors.NewStore("failed to store drone", err)
	}

	s := newSession(r, conn, d)
	r.running.Add(1)
	if replaced := r.swap(s); replaced != nil {
		r.logger.Warn("drone registered again, replacing live session",
			slog.String("drone_id", d.ID),
			slog.String("replaced_session", replaced.ID()),
		)
		replaced.Close()
	}

	if d.IsOnMission {
		s.restoreMission(ctx)
	}

	r.logger.Info("drone registered", slog.String("drone_id", d.ID), slog.String("session_id", s.ID()))
	return s, nil
}

func (r *Registry) swap(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := r.sessions[s.droneID]
	r.sessions[s.droneID] = s
	return replaced
}

// Unregister removes s if it is still the live session for its drone and
// reports whether it did.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[s.droneID]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, s.droneID)
	return true
}

func (r *Registry) Session(droneID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[droneID]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Dispatch hands ev to the drone's live session. It reports false, and the
// event is dropped, when the drone has none.
func (r *Registry) Dispatch(droneID string, ev Event) bool {
	s, ok := r.Session(droneID)
	if !ok {
		r.logger.Debug("no live session for drone, dropping event", slog.String("drone_id", droneID))
		return false
	}
	if !s.Deliver(ev) {
		r.logger.Warn("session did not accept event", slog.String("drone_id", droneID))
		return false
	}
	return true
}

// RequestFlightPermit asks a connected drone for a flight permit.
func (r *Registry) RequestFlightPermit(droneID string) bool {
	return r.Dispatch(droneID, RequestFlightPermitEvent{})
}

// Shutdown closes every live session and waits for their Run loops to
// finish tearing down, or for ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.Close()
	finished := make(chan struct{})
	go func() {
		r.running.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes every live session.
func (r *Registry) Close() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
