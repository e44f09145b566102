package fleet

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"drone-fleet/internal/common"
	"drone-fleet/internal/drone"
	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/mission"
)

type State string

const (
	StateIdle          State = "idle"
	StatePermitPending State = "permit_pending"
	StatePermitGranted State = "permit_granted"
	StateEnRoute       State = "en_route"
	StateOnMission     State = "on_mission"
	StateReturning     State = "returning"
	StateDisconnected  State = "disconnected"
)

var ErrSessionClosed = errors.New("session closed")

type inboxItem struct {
	in Inbound
	ev Event
}

// Session binds one live drone connection to that drone's record and mission
// state. Inbound messages, events and proximity ticks are all handled on the
// goroutine running Run, one at a time, in arrival order.
type Session struct {
	id      string
	droneID string
	conn    Conn
	reg     *Registry
	logger  *slog.Logger

	inbox     chan inboxItem
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.RWMutex
	state State

	// Owned by the Run goroutine.
	drone                 *drone.Drone
	currentMission        *mission.Details
	locationBeforeMission *common.Location
	nearby                []NearbyDrone
	lastReturned          string
}

func newSession(reg *Registry, conn Conn, d *drone.Drone) *Session {
	s := &Session{
		id:      uuid.New().String(),
		droneID: d.ID,
		conn:    conn,
		reg:     reg,
		logger:  reg.logger.With(slog.String("drone_id", d.ID)),
		inbox:   make(chan inboxItem, reg.cfg.InboxSize),
		done:    make(chan struct{}),
		state:   StateIdle,
		drone:   d,
	}
	if d.IsOnMission {
		s.state = StateOnMission
	}
	return s
}

func (s *Session) ID() string      { return s.id }
func (s *Session) DroneID() string { return s.droneID }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.logger.Debug("session state changed", slog.String("from", string(prev)), slog.String("to", string(next)))
	}
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close marks the connection as gone. Run finishes the messages already
// received and then tears the session down.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Receive queues a message read from the connection. It blocks while the
// inbox is full, which applies backpressure to the reader.
func (s *Session) Receive(ctx context.Context, in Inbound) error {
	if s.closed() {
		return ErrSessionClosed
	}
	select {
	case s.inbox <- inboxItem{in: in}:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver queues an event without blocking. It reports false when the
// session is closed or its inbox is full.
func (s *Session) Deliver(ev Event) bool {
	if s.closed() {
		return false
	}
	select {
	case s.inbox <- inboxItem{ev: ev}:
		return true
	default:
		return false
	}
}

// Run processes the session until the connection closes or ctx ends, then
// disconnects it. Every registered session must be run exactly once.
func (s *Session) Run(ctx context.Context) {
	defer s.reg.running.Done()
	ticker := time.NewTicker(s.reg.cfg.ProximityInterval)
	defer ticker.Stop()
	defer s.disconnect(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			s.drain(ctx)
			return
		case item := <-s.inbox:
			s.handle(ctx, item)
		case <-ticker.C:
			s.proximityTick(ctx)
		}
	}
}

// drain handles inbound messages that arrived before the close. Pending
// events are dropped; the drone can no longer act on them.
func (s *Session) drain(ctx context.Context) {
	for {
		select {
		case item := <-s.inbox:
			if item.in != nil {
				s.handleInbound(ctx, item.in)
			} else if dep, ok := item.ev.(DepartEvent); ok {
				s.reg.dispatched.ReleaseIf(s.droneID, dep.Mission.ID)
			}
		default:
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, item inboxItem) {
	if item.in != nil {
		s.handleInbound(ctx, item.in)
		return
	}
	s.handleEvent(ctx, item.ev)
}

func (s *Session) handleInbound(ctx context.Context, in Inbound) {
	switch msg := in.(type) {
	case RegisterMsg:
		s.logger.Warn("drone registered again on a live session, applying as update")
		s.handleUpdate(ctx, msg.Drone)
	case UpdateMsg:
		s.handleUpdate(ctx, msg.Drone)
	case GotFlightPermitMsg:
		s.handleGotFlightPermit(ctx)
	case MissionReportMsg:
		s.handleMissionReport(ctx, msg)
	case CameFromMissionMsg:
		s.cameFromMission(ctx, "")
	case UnknownMsg:
		s.logger.Warn("unknown message type, ignoring", slog.String("type", msg.Type))
	default:
		s.logger.Warn("unhandled inbound message, ignoring", slog.Any("message", msg))
	}
}

func (s *Session) handleEvent(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case DepartEvent:
		s.depart(ctx, e.Mission)
	case RequestFlightPermitEvent:
		s.requestFlightPermit(ctx)
	default:
		s.logger.Warn("unhandled event, ignoring", slog.Any("event", e))
	}
}

func (s *Session) depart(ctx context.Context, details mission.Details) {
	log := s.logger.With(slog.String("mission_id", details.ID))
	if details.ID == s.lastReturned {
		s.reg.dispatched.ReleaseIf(s.droneID, details.ID)
		log.Warn("drone already returned from this mission, dropping depart command")
		return
	}
	if err := s.drone.Depart(); err != nil {
		log.Warn("drone is already on a mission, dropping depart command")
		return
	}

	if err := s.conn.Send(ctx, NewDepartCommand(details)); err != nil {
		// The drone never saw the command: undo so a later poll can retry.
		s.drone.IsOnMission = false
		s.drone.MissionCompletionPct = nil
		s.reg.dispatched.ReleaseIf(s.droneID, details.ID)
		log.Error("failed to send depart command", slog.String("error", err.Error()))
		return
	}

	start := s.drone.Location()
	s.locationBeforeMission = &start
	s.currentMission = &details
	s.persist(ctx)
	s.setState(StateEnRoute)
	log.Info("drone departed for mission")
}

func (s *Session) requestFlightPermit(ctx context.Context) {
	if err := s.conn.Send(ctx, NewFlightPermitRequest()); err != nil {
		s.logger.Error("failed to request flight permit", slog.String("error", err.Error()))
		return
	}
	if s.State() == StateIdle {
		s.setState(StatePermitPending)
	}
}

func (s *Session) handleGotFlightPermit(ctx context.Context) {
	s.drone.GrantFlightPermit()
	s.persist(ctx)
	if s.State() == StatePermitPending {
		s.setState(StatePermitGranted)
	}
}

func (s *Session) handleUpdate(ctx context.Context, next *drone.Drone) {
	if next.ID != s.droneID {
		s.logger.Warn("update for another drone id, ignoring", slog.String("payload_id", next.ID))
		return
	}

	s.drone.ApplyTelemetry(next)
	if s.drone.IsOnMission {
		s.updateCompletion()
		if st := s.State(); st == StateEnRoute || st == StateOnMission {
			s.setState(StateOnMission)
		}
	}
	s.persist(ctx)

	if s.reg.cache != nil && !s.superseded() {
		if err := s.reg.cache.Set(ctx, s.droneID, s.drone.Location()); err != nil {
			s.logger.Warn("failed to cache drone location", slog.String("error", err.Error()))
		}
	}
}

func (s *Session) updateCompletion() {
	if s.currentMission == nil || s.locationBeforeMission == nil {
		return
	}
	pct, ok := common.CompletionPercent(*s.locationBeforeMission, s.drone.Location(), s.currentMission.Location())
	if ok {
		s.drone.SetCompletion(pct)
	}
}

func (s *Session) handleMissionReport(ctx context.Context, msg MissionReportMsg) {
	log := s.logger.With(slog.String("mission_id", msg.Report.MissionID))
	if msg.Report.DroneID != s.droneID {
		log.Warn("mission report names another drone", slog.String("report_drone_id", msg.Report.DroneID))
	}

	if _, err := s.reg.reports.Submit(ctx, msg.Report); err != nil {
		log.Error("failed to submit mission report", slog.String("error", err.Error()))
		return
	}
	s.cameFromMission(ctx, msg.Report.MissionID)
}

// cameFromMission returns the drone to idle and closes the mission once every
// assigned drone is back. Calling it for a drone that is not on a mission
// does nothing. The return is recorded before the drone is stored as idle and
// the dispatch entry is released last, so a poll in between never sees the
// mission as due for this drone.
func (s *Session) cameFromMission(ctx context.Context, missionHint string) {
	if !s.drone.IsOnMission && s.currentMission == nil {
		s.logger.Debug("drone is not on a mission, nothing to return from")
		return
	}
	s.setState(StateReturning)

	missionID := s.resolveMissionID(ctx, missionHint)
	now := time.Now()
	if missionID != "" {
		if err := s.reg.store.MarkDroneReturned(ctx, missionID, s.droneID, now); err != nil {
			s.logger.Error("failed to record drone return",
				slog.String("mission_id", missionID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.drone.ComeBack()
	s.persist(ctx)
	s.currentMission = nil
	s.locationBeforeMission = nil
	s.nearby = nil

	if missionID != "" {
		s.lastReturned = missionID
		s.completeMission(ctx, missionID, now)
	}
	s.reg.dispatched.Release(s.droneID)
	s.setState(StateIdle)
}

func (s *Session) resolveMissionID(ctx context.Context, hint string) string {
	if s.currentMission != nil {
		return s.currentMission.ID
	}
	if hint != "" {
		return hint
	}
	m, err := s.reg.store.FindMissionContaining(ctx, s.droneID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			s.logger.Warn("returning drone is not attached to an open mission")
		} else {
			s.logger.Error("failed to look up mission for returning drone", slog.String("error", err.Error()))
		}
		return ""
	}
	return m.ID
}

func (s *Session) completeMission(ctx context.Context, missionID string, at time.Time) {
	log := s.logger.With(slog.String("mission_id", missionID))
	completed, err := s.reg.store.MarkMissionCompletedIfAllDronesIdle(ctx, missionID, at)
	if err != nil {
		log.Error("failed to complete mission", slog.String("error", err.Error()))
		return
	}
	if completed {
		log.Info("mission completed")
	}
}

// disconnect runs once Run ends. A session that lost its registry entry to a
// newer connection leaves the drone record alone.
func (s *Session) disconnect(ctx context.Context) {
	s.Close()
	s.setState(StateDisconnected)
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("closing drone connection", slog.String("error", err.Error()))
	}

	if !s.reg.Unregister(s) {
		s.logger.Info("replaced session closed")
		return
	}

	s.drone.Deactivate()
	s.persist(ctx)
	s.reg.dispatched.Release(s.droneID)
	if s.reg.cache != nil {
		if err := s.reg.cache.Evict(ctx, s.droneID); err != nil {
			s.logger.Warn("failed to evict cached location", slog.String("error", err.Error()))
		}
	}
	s.logger.Info("drone disconnected")
}

// superseded reports whether a newer registration owns the drone id. The
// replaced session may still drain queued messages but must not write over
// the newer record.
func (s *Session) superseded() bool {
	current, ok := s.reg.Session(s.droneID)
	return ok && current != s
}

func (s *Session) persist(ctx context.Context) {
	if s.superseded() {
		s.logger.Debug("session replaced, not persisting stale drone record")
		return
	}
	if err := s.reg.store.UpsertDrone(ctx, s.drone); err != nil {
		s.logger.Error("failed to persist drone", slog.String("error", err.Error()))
	}
}

// restoreMission reattaches a drone that reconnects mid-mission to its open
// mission. The start location is unknown, so completion is not recomputed
// until the next dispatch.
func (s *Session) restoreMission(ctx context.Context) {
	m, err := s.reg.store.FindMissionContaining(ctx, s.droneID)
	if err != nil {
		if !domainerrors.IsNotFound(err) {
			s.logger.Warn("failed to restore mission for reconnecting drone", slog.String("error", err.Error()))
		}
		return
	}
	details := m.Details()
	s.currentMission = &details
	s.logger.Info("reconnected drone resumed mission", slog.String("mission_id", m.ID))
}
