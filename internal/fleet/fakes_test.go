package fleet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"drone-fleet/internal/common"
	"drone-fleet/internal/drone"
	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/logging"
	"drone-fleet/internal/mission"
	"drone-fleet/internal/report"
)

// memStore is an in-memory Store with the same query semantics as the
// Postgres one.
type memStore struct {
	mu        sync.Mutex
	drones    map[string]*drone.Drone
	missions  map[string]*mission.Mission
	returned  map[string]map[string]time.Time
	upserts   int
	upsertErr error
	dueErr    error
}

func newMemStore() *memStore {
	return &memStore{
		drones:   map[string]*drone.Drone{},
		missions: map[string]*mission.Mission{},
		returned: map[string]map[string]time.Time{},
	}
}

func (m *memStore) putDrone(d *drone.Drone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.drones[d.ID] = &cp
}

func (m *memStore) putMission(ms *mission.Mission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missions[ms.ID] = ms
}

func (m *memStore) drone(id string) *drone.Drone {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drones[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (m *memStore) mission(id string) *mission.Mission {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.missions[id]
	if ms == nil {
		return nil
	}
	cp := *ms
	return &cp
}

func (m *memStore) FindDrone(_ context.Context, id string) (*drone.Drone, error) {
	if d := m.drone(id); d != nil {
		return d, nil
	}
	return nil, domainerrors.DroneNotFound(id)
}

func (m *memStore) UpsertDrone(_ context.Context, d *drone.Drone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *d
	m.drones[d.ID] = &cp
	m.upserts++
	return nil
}

// openFor lists open missions the drone is assigned to and has not returned
// from, earliest first. Callers hold mu.
func (m *memStore) openFor(droneID string, now time.Time) []*mission.Mission {
	var out []*mission.Mission
	for _, ms := range m.missions {
		if ms.IsCompleted || ms.StartTime.After(now) {
			continue
		}
		if _, back := m.returned[ms.ID][droneID]; back {
			continue
		}
		for _, id := range ms.DroneIDs {
			if id == droneID {
				out = append(out, ms)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) FindIdleDronesWithDueMissions(_ context.Context, now time.Time) ([]DueDrone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	ids := make([]string, 0, len(m.drones))
	for id := range m.drones {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []DueDrone
	for _, id := range ids {
		d := m.drones[id]
		if !d.IsActive || d.IsOnMission {
			continue
		}
		if due := m.openFor(id, now); len(due) > 0 {
			out = append(out, DueDrone{DroneID: id, Missions: due})
		}
	}
	return out, nil
}

func (m *memStore) FindMissionContaining(_ context.Context, droneID string) (*mission.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := m.openFor(droneID, time.Now())
	if len(open) == 0 {
		return nil, domainerrors.NoActiveMission(droneID)
	}
	return open[0], nil
}

func (m *memStore) FindNearbyDrones(_ context.Context, missionID, excludeID string, box common.BoundingBox) ([]*drone.Drone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[missionID]
	if !ok {
		return nil, nil
	}
	var out []*drone.Drone
	for _, id := range ms.DroneIDs {
		d, ok := m.drones[id]
		if !ok || id == excludeID || !d.IsActive || !d.IsOnMission {
			continue
		}
		if box.Contains(d.Location()) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) MarkDroneReturned(_ context.Context, missionID, droneID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.returned[missionID] == nil {
		m.returned[missionID] = map[string]time.Time{}
	}
	m.returned[missionID][droneID] = at
	return nil
}

func (m *memStore) MarkMissionCompletedIfAllDronesIdle(_ context.Context, missionID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[missionID]
	if !ok || ms.IsCompleted {
		return false, nil
	}
	for _, id := range ms.DroneIDs {
		if d, ok := m.drones[id]; ok && d.IsOnMission {
			return false, nil
		}
	}
	ms.IsCompleted = true
	ms.EndTime = &at
	return true, nil
}

// memReports backs the real report service.
type memReports struct {
	mu      sync.Mutex
	reports map[string]*report.Report
}

func newMemReports() *memReports {
	return &memReports{reports: map[string]*report.Report{}}
}

func (m *memReports) FindReport(_ context.Context, missionID string) (*report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[missionID]; ok {
		return r, nil
	}
	return nil, domainerrors.ReportNotFound(missionID)
}

func (m *memReports) CreateReport(_ context.Context, r *report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[r.MissionID]; ok {
		return domainerrors.NewConflict("duplicate")
	}
	m.reports[r.MissionID] = r
	return nil
}

func (m *memReports) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

// fakeConn records what a session sends.
type fakeConn struct {
	mu      sync.Mutex
	sent    []Outbound
	closed  bool
	sendErr error
}

func (c *fakeConn) Send(_ context.Context, msg Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentOfType(t string) []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Outbound
	for _, m := range c.sent {
		if m.MessageType() == t {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeCache struct {
	mu   sync.Mutex
	locs map[string]common.Location
}

func newFakeCache() *fakeCache {
	return &fakeCache{locs: map[string]common.Location{}}
}

func (c *fakeCache) Set(_ context.Context, droneID string, loc common.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locs[droneID] = loc
	return nil
}

func (c *fakeCache) Evict(_ context.Context, droneID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locs, droneID)
	return nil
}

func (c *fakeCache) get(droneID string) (common.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.locs[droneID]
	return loc, ok
}

type harness struct {
	store      *memStore
	reports    *memReports
	cache      *fakeCache
	dispatched *DispatchedSet
	registry   *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:      newMemStore(),
		reports:    newMemReports(),
		cache:      newFakeCache(),
		dispatched: NewDispatchedSet(),
	}
	logger := logging.Discard()
	cfg := DefaultSessionConfig()
	cfg.ProximityInterval = time.Hour
	h.registry = NewRegistry(h.store, report.NewReportService(h.reports, logger), h.cache, h.dispatched, cfg, logger)
	return h
}

func testDrone(id string, lat, lng float64) *drone.Drone {
	return &drone.Drone{
		ID:               id,
		Name:             id,
		Type:             drone.CategoryAir,
		EngineType:       drone.EngineElectric,
		CurrentLatitude:  lat,
		CurrentLongitude: lng,
		IsActive:         true,
		Specialization:   drone.SpecReconnaissance,
	}
}

func testMission(id string, start time.Time, target common.Location, droneIDs ...string) *mission.Mission {
	return &mission.Mission{
		ID:                id,
		Name:              id,
		LocationLatitude:  target.Lat,
		LocationLongitude: target.Lng,
		StartTime:         start,
		Goal:              mission.GoalReconnaissance,
		DroneIDs:          droneIDs,
	}
}

// register binds a fresh fakeConn for d without starting Run.
func (h *harness) register(t *testing.T, d *drone.Drone) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s, err := h.registry.Register(context.Background(), conn, d)
	if err != nil {
		t.Fatalf("register %s: %v", d.ID, err)
	}
	return s, conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
