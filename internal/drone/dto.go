package drone

import (
	"encoding/json"
	"time"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/pkg/validation"
)

// RecordPayload is the drone record as sent by a drone in register and
// update messages. Numeric fields are pointers so a missing value can be told
// apart from zero.
type RecordPayload struct {
	ID          string `json:"id" validate:"required,max=128"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=land water air space"`
	EngineType  string `json:"engineType" validate:"required,oneof=fuel electric"`

	FuelOrBatteryLevel *float64 `json:"fuelOrBatteryLevel" validate:"required,gte=0,lte=100"`
	CurrentLatitude    *float64 `json:"currentLatitude" validate:"required,gte=-90,lte=90"`
	CurrentLongitude   *float64 `json:"currentLongitude" validate:"required,gte=-180,lte=180"`

	CommunicationFrequencyHz *float64 `json:"communicationFrequencyHz" validate:"omitempty,gt=0"`

	MaxSpeedKmh     *float64 `json:"maxSpeedKmh" validate:"required,gte=0"`
	MaxDistanceKm   *float64 `json:"maxDistanceKm" validate:"required,gte=0"`
	PricePerHourUSD *float64 `json:"pricePerHourUSD" validate:"required,gte=0"`
	NoiseLevelDb    *float64 `json:"noiseLevelDb" validate:"required,gte=0"`
	LengthCm        *float64 `json:"lengthCm" validate:"required,gte=0"`
	WidthCm         *float64 `json:"widthCm" validate:"required,gte=0"`
	HeightCm        *float64 `json:"heightCm" validate:"required,gte=0"`
	MaxLoadKg       *float64 `json:"maxLoadKg" validate:"required,gte=0"`

	Specialization string `json:"specialization" validate:"required,oneof=rescue reconnaissance assault agriculture delivery"`

	IsActive        *bool `json:"isActive"`
	IsOnMission     *bool `json:"isOnMission"`
	GotFlightPermit *bool `json:"gotFlightPermit"`
}

// ParseRecord decodes and validates a drone record. A VALIDATION DomainError
// lists every offending field.
func ParseRecord(raw json.RawMessage) (*Drone, error) {
	if len(raw) == 0 {
		return nil, domainerrors.NewValidation("drone record is missing")
	}
	var p RecordPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domainerrors.Wrap(domainerrors.ErrValidation, "malformed drone record", err)
	}
	if err := validation.Struct("invalid drone record", &p); err != nil {
		return nil, err
	}
	return p.ToDrone(time.Now()), nil
}

func (p *RecordPayload) ToDrone(now time.Time) *Drone {
	d := &Drone{
		ID:                       p.ID,
		Name:                     p.Name,
		Description:              p.Description,
		Type:                     Category(p.Type),
		EngineType:               EngineType(p.EngineType),
		FuelOrBatteryLevel:       *p.FuelOrBatteryLevel,
		CurrentLatitude:          *p.CurrentLatitude,
		CurrentLongitude:         *p.CurrentLongitude,
		CommunicationFrequencyHz: p.CommunicationFrequencyHz,
		MaxSpeedKmh:              *p.MaxSpeedKmh,
		MaxDistanceKm:            *p.MaxDistanceKm,
		PricePerHourUSD:          *p.PricePerHourUSD,
		NoiseLevelDb:             *p.NoiseLevelDb,
		LengthCm:                 *p.LengthCm,
		WidthCm:                  *p.WidthCm,
		HeightCm:                 *p.HeightCm,
		MaxLoadKg:                *p.MaxLoadKg,
		Specialization:           Specialization(p.Specialization),
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if p.IsActive != nil {
		d.IsActive = *p.IsActive
	}
	if p.IsOnMission != nil {
		d.IsOnMission = *p.IsOnMission
	}
	if p.GotFlightPermit != nil {
		d.GotFlightPermit = *p.GotFlightPermit
	}
	return d
}

type ListResponse struct {
	Drones []*Drone `json:"drones"`
	Total  int      `json:"total"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
}

type LocationResponse struct {
	DroneID string    `json:"drone_id"`
	Lat     float64   `json:"lat"`
	Lng     float64   `json:"lng"`
	Source  string    `json:"source"`
	AsOf    time.Time `json:"as_of"`
}
