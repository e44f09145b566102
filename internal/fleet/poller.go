package fleet

import (
	"context"
	"log/slog"
	"time"
)

type dispatcher interface {
	Dispatch(droneID string, ev Event) bool
}

// Poller sends each due mission to each of its idle, connected drones once.
type Poller struct {
	store        Store
	registry     dispatcher
	dispatched   *DispatchedSet
	interval     time.Duration
	startupDelay time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewPoller(store Store, registry dispatcher, dispatched *DispatchedSet, interval, startupDelay time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		store:        store,
		registry:     registry,
		dispatched:   dispatched,
		interval:     interval,
		startupDelay: startupDelay,
		logger:       logger.With(slog.String("component", "poller")),
		now:          time.Now,
	}
}

// Run polls every interval after the startup delay until ctx ends. A failed
// cycle is logged and the next tick starts fresh.
func (p *Poller) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(p.startupDelay):
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("mission dispatch poller started", slog.Duration("interval", p.interval))
	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("poll cycle failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			p.logger.Info("mission dispatch poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one dispatch cycle and returns how many depart events reached a
// session.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	due, err := p.store.FindIdleDronesWithDueMissions(ctx, p.now())
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, d := range due {
		if len(d.Missions) == 0 {
			continue
		}
		m := d.Missions[0]
		if len(d.Missions) > 1 {
			p.logger.Warn("drone has several due missions, dispatching the earliest",
				slog.String("drone_id", d.DroneID),
				slog.String("mission_id", m.ID),
				slog.Int("due", len(d.Missions)),
			)
		}

		if !p.dispatched.TryAdd(d.DroneID, m.ID) {
			continue
		}
		if !p.registry.Dispatch(d.DroneID, DepartEvent{Mission: m.Details()}) {
			p.dispatched.ReleaseIf(d.DroneID, m.ID)
			continue
		}
		p.logger.Info("depart dispatched", slog.String("drone_id", d.DroneID), slog.String("mission_id", m.ID))
		sent++
	}
	return sent, nil
}
