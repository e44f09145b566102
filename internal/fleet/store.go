package fleet

import (
	"context"
	"time"

	"drone-fleet/internal/common"
	"drone-fleet/internal/drone"
	"drone-fleet/internal/mission"
	"drone-fleet/internal/report"
)

// Store is the durable state the coordinator reads and writes.
type Store interface {
	FindDrone(ctx context.Context, id string) (*drone.Drone, error)
	UpsertDrone(ctx context.Context, d *drone.Drone) error
	// FindIdleDronesWithDueMissions returns active drones that are not on a
	// mission, each with the missions due for it, oldest first.
	FindIdleDronesWithDueMissions(ctx context.Context, now time.Time) ([]DueDrone, error)
	// FindMissionContaining returns the open mission the drone is attached
	// to, or a NOT_FOUND error.
	FindMissionContaining(ctx context.Context, droneID string) (*mission.Mission, error)
	FindNearbyDrones(ctx context.Context, missionID, excludeID string, box common.BoundingBox) ([]*drone.Drone, error)
	MarkDroneReturned(ctx context.Context, missionID, droneID string, at time.Time) error
	// MarkMissionCompletedIfAllDronesIdle reports whether the call closed
	// the mission.
	MarkMissionCompletedIfAllDronesIdle(ctx context.Context, missionID string, at time.Time) (bool, error)
}

type DueDrone struct {
	DroneID  string
	Missions []*mission.Mission
}

// ReportSubmitter stores mission reports idempotently.
type ReportSubmitter interface {
	Submit(ctx context.Context, p *report.SubmitPayload) (bool, error)
}

// LocationCache holds the last known position of connected drones.
type LocationCache interface {
	Set(ctx context.Context, droneID string, loc common.Location) error
	Evict(ctx context.Context, droneID string) error
}

// Conn is the session's side of a drone connection. Send must be safe to
// call after Close and then returns an error.
type Conn interface {
	Send(ctx context.Context, msg Outbound) error
	Close() error
}
