package drone

import (
	"time"

	"drone-fleet/internal/common"
	domainerrors "drone-fleet/internal/errors"
)

type Category string

const (
	CategoryLand  Category = "land"
	CategoryWater Category = "water"
	CategoryAir   Category = "air"
	CategorySpace Category = "space"
)

type EngineType string

const (
	EngineFuel     EngineType = "fuel"
	EngineElectric EngineType = "electric"
)

type Specialization string

const (
	SpecRescue         Specialization = "rescue"
	SpecReconnaissance Specialization = "reconnaissance"
	SpecAssault        Specialization = "assault"
	SpecAgriculture    Specialization = "agriculture"
	SpecDelivery       Specialization = "delivery"
)

// Drone is the persisted record of one drone: static specs, live telemetry
// and the fleet-state flags owned by the drone's session.
type Drone struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Type        Category   `db:"type" json:"type"`
	EngineType  EngineType `db:"engine_type" json:"engineType"`

	FuelOrBatteryLevel       float64  `db:"fuel_or_battery_level" json:"fuelOrBatteryLevel"`
	CurrentLatitude          float64  `db:"current_latitude" json:"currentLatitude"`
	CurrentLongitude         float64  `db:"current_longitude" json:"currentLongitude"`
	CommunicationFrequencyHz *float64 `db:"communication_frequency_hz" json:"communicationFrequencyHz,omitempty"`
	MissionCompletionPct     *float64 `db:"mission_completion_pct" json:"missionCompletionPercentage,omitempty"`

	MaxSpeedKmh     float64        `db:"max_speed_kmh" json:"maxSpeedKmh"`
	MaxDistanceKm   float64        `db:"max_distance_km" json:"maxDistanceKm"`
	PricePerHourUSD float64        `db:"price_per_hour_usd" json:"pricePerHourUSD"`
	NoiseLevelDb    float64        `db:"noise_level_db" json:"noiseLevelDb"`
	LengthCm        float64        `db:"length_cm" json:"lengthCm"`
	WidthCm         float64        `db:"width_cm" json:"widthCm"`
	HeightCm        float64        `db:"height_cm" json:"heightCm"`
	MaxLoadKg       float64        `db:"max_load_kg" json:"maxLoadKg"`
	Specialization  Specialization `db:"specialization" json:"specialization"`

	IsActive        bool `db:"is_active" json:"isActive"`
	IsOnMission     bool `db:"is_on_mission" json:"isOnMission"`
	GotFlightPermit bool `db:"got_flight_permit" json:"gotFlightPermit"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

func (d *Drone) Location() common.Location {
	return common.NewLocation(d.CurrentLatitude, d.CurrentLongitude)
}

// Depart marks the drone as executing a mission.
func (d *Drone) Depart() error {
	if d.IsOnMission {
		return domainerrors.NewConflict("drone " + d.ID + " is already on a mission")
	}
	d.IsOnMission = true
	zero := 0.0
	d.MissionCompletionPct = &zero
	d.UpdatedAt = time.Now()
	return nil
}

// ComeBack clears every mission-scoped flag.
func (d *Drone) ComeBack() {
	d.IsOnMission = false
	d.GotFlightPermit = false
	d.MissionCompletionPct = nil
	d.UpdatedAt = time.Now()
}

func (d *Drone) GrantFlightPermit() {
	d.GotFlightPermit = true
	d.UpdatedAt = time.Now()
}

func (d *Drone) Deactivate() {
	d.IsActive = false
	d.UpdatedAt = time.Now()
}

// ApplyTelemetry replaces specs and telemetry with the values from next.
// Fleet-state flags, the computed completion percentage and CreatedAt stay
// as they are: only the owning session writes those.
func (d *Drone) ApplyTelemetry(next *Drone) {
	active, onMission, permit := d.IsActive, d.IsOnMission, d.GotFlightPermit
	pct, created := d.MissionCompletionPct, d.CreatedAt

	*d = *next
	d.IsActive, d.IsOnMission, d.GotFlightPermit = active, onMission, permit
	d.MissionCompletionPct, d.CreatedAt = pct, created
	d.UpdatedAt = time.Now()
}

// SetCompletion records the mission completion percentage.
func (d *Drone) SetCompletion(pct float64) {
	d.MissionCompletionPct = &pct
}
