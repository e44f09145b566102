package mission

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"drone-fleet/internal/common"
)

type Goal string

const (
	GoalRescue         Goal = "rescue"
	GoalReconnaissance Goal = "reconnaissance"
	GoalAssault        Goal = "assault"
	GoalAgriculture    Goal = "agriculture"
	GoalDelivery       Goal = "delivery"
)

type Mission struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Description       string         `db:"description" json:"description"`
	LocationLatitude  float64        `db:"location_latitude" json:"locationLatitude"`
	LocationLongitude float64        `db:"location_longitude" json:"locationLongitude"`
	StartTime         time.Time      `db:"start_time" json:"startTime"`
	ExpectedEndTime   *time.Time     `db:"expected_end_time" json:"expectedEndTime,omitempty"`
	EndTime           *time.Time     `db:"end_time" json:"endTime,omitempty"`
	Goal              Goal           `db:"goal" json:"goal"`
	IsCompleted       bool           `db:"is_completed" json:"isCompleted"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	DroneIDs          pq.StringArray `db:"drone_ids" json:"dronesIds"`
}

func NewMission(name, description string, target common.Location, start time.Time, expectedEnd *time.Time, goal Goal, droneIDs []string) *Mission {
	return &Mission{
		ID:                uuid.New().String(),
		Name:              name,
		Description:       description,
		LocationLatitude:  target.Lat,
		LocationLongitude: target.Lng,
		StartTime:         start,
		ExpectedEndTime:   expectedEnd,
		Goal:              goal,
		CreatedAt:         time.Now(),
		DroneIDs:          droneIDs,
	}
}

func (m *Mission) Location() common.Location {
	return common.NewLocation(m.LocationLatitude, m.LocationLongitude)
}

// IsDue reports whether the mission has started and is still open.
func (m *Mission) IsDue(now time.Time) bool {
	return !m.IsCompleted && !m.StartTime.After(now)
}

// Details is the public view of a mission sent to a drone with a depart
// command. Times are epoch milliseconds.
type Details struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	LocationLatitude  float64 `json:"locationLatitude"`
	LocationLongitude float64 `json:"locationLongitude"`
	StartTime         int64   `json:"startTime"`
	ExpectedEndTime   *int64  `json:"expectedEndTime,omitempty"`
	Goal              Goal    `json:"goal"`
}

func (m *Mission) Details() Details {
	d := Details{
		ID:                m.ID,
		Name:              m.Name,
		Description:       m.Description,
		LocationLatitude:  m.LocationLatitude,
		LocationLongitude: m.LocationLongitude,
		StartTime:         m.StartTime.UnixMilli(),
		Goal:              m.Goal,
	}
	if m.ExpectedEndTime != nil {
		ms := m.ExpectedEndTime.UnixMilli()
		d.ExpectedEndTime = &ms
	}
	return d
}

func (d Details) Location() common.Location {
	return common.NewLocation(d.LocationLatitude, d.LocationLongitude)
}

// DueAssignment pairs an idle drone with one of its due missions.
type DueAssignment struct {
	DroneID string `db:"assigned_drone_id"`
	Mission
}
