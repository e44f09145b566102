package mission

import (
	"time"

	"drone-fleet/internal/common"
)

type CreateMissionRequest struct {
	Name              string   `json:"name" binding:"required"`
	Description       string   `json:"description" binding:"required"`
	LocationLatitude  *float64 `json:"locationLatitude" binding:"required,gte=-90,lte=90"`
	LocationLongitude *float64 `json:"locationLongitude" binding:"required,gte=-180,lte=180"`
	StartTime         *int64   `json:"startTime" binding:"required"`
	ExpectedEndTime   *int64   `json:"expectedEndTime" binding:"omitempty,gtfield=StartTime"`
	Goal              string   `json:"goal" binding:"required,oneof=rescue reconnaissance assault agriculture delivery"`
	DronesIDs         []string `json:"dronesIds" binding:"omitempty,dive,required"`
}

func (r *CreateMissionRequest) ToMission() *Mission {
	var expected *time.Time
	if r.ExpectedEndTime != nil {
		t := time.UnixMilli(*r.ExpectedEndTime)
		expected = &t
	}
	return NewMission(
		r.Name,
		r.Description,
		common.NewLocation(*r.LocationLatitude, *r.LocationLongitude),
		time.UnixMilli(*r.StartTime),
		expected,
		Goal(r.Goal),
		dedupe(r.DronesIDs),
	)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

type MissionResponse struct {
	Mission *Mission `json:"mission"`
}

type ListResponse struct {
	Missions []*Mission `json:"missions"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}
