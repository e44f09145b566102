package fleet

import (
	"context"
	"log/slog"

	"drone-fleet/internal/common"
	domainerrors "drone-fleet/internal/errors"
)

// proximityTick pushes the list of other on-mission drones of the same
// mission within the proximity box. It does nothing while the drone is not
// on a mission or is not attached to an open mission.
func (s *Session) proximityTick(ctx context.Context) {
	if !s.drone.IsOnMission {
		return
	}

	m, err := s.reg.store.FindMissionContaining(ctx, s.droneID)
	if err != nil {
		if !domainerrors.IsNotFound(err) {
			s.logger.Warn("proximity: mission lookup failed", slog.String("error", err.Error()))
		}
		return
	}

	self := s.drone.Location()
	box := common.BoxAround(self, s.reg.cfg.ProximityRadiusDeg)
	others, err := s.reg.store.FindNearbyDrones(ctx, m.ID, s.droneID, box)
	if err != nil {
		s.logger.Warn("proximity: nearby lookup failed", slog.String("error", err.Error()))
		return
	}

	nearby := make([]NearbyDrone, 0, len(others))
	for _, o := range others {
		nearby = append(nearby, NearbyDrone{
			ID:          o.ID,
			DistanceKm:  common.PlanarDistanceKm(self, o.Location()),
			FrequencyHz: s.drone.CommunicationFrequencyHz,
		})
	}
	s.nearby = nearby

	if err := s.conn.Send(ctx, NewNearbyDronesUpdate(nearby)); err != nil {
		s.logger.Warn("proximity: failed to send update", slog.String("error", err.Error()))
	}
}
