package drone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"drone-fleet/internal/common"
	domainerrors "drone-fleet/internal/errors"
)

const columns = `d.id, d.name, d.description, d.type, d.engine_type,
	d.fuel_or_battery_level, d.current_latitude, d.current_longitude,
	d.communication_frequency_hz, d.mission_completion_pct,
	d.max_speed_kmh, d.max_distance_km, d.price_per_hour_usd, d.noise_level_db,
	d.length_cm, d.width_cm, d.height_cm, d.max_load_kg, d.specialization,
	d.is_active, d.is_on_mission, d.got_flight_permit, d.created_at, d.updated_at`

type Repository interface {
	Upsert(ctx context.Context, ext sqlx.ExtContext, d *Drone) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Drone, error)
	ListActive(ctx context.Context, ext sqlx.ExtContext, page, limit int) ([]*Drone, int, error)
	ListActiveUpdatedSince(ctx context.Context, ext sqlx.ExtContext, since time.Time) ([]*Drone, error)
	ListNearbyOnMission(ctx context.Context, ext sqlx.ExtContext, missionID, excludeID string, box common.BoundingBox) ([]*Drone, error)
	MissingIDs(ctx context.Context, ext sqlx.ExtContext, ids []string) ([]string, error)
}

type droneRepository struct{}

func NewRepository() Repository {
	return &droneRepository{}
}

// Upsert writes the whole record. The row's created_at survives conflicts.
func (r *droneRepository) Upsert(ctx context.Context, ext sqlx.ExtContext, d *Drone) error {
	const query = `INSERT INTO drones (id, name, description, type, engine_type,
		fuel_or_battery_level, current_latitude, current_longitude,
		communication_frequency_hz, mission_completion_pct,
		max_speed_kmh, max_distance_km, price_per_hour_usd, noise_level_db,
		length_cm, width_cm, height_cm, max_load_kg, specialization,
		is_active, is_on_mission, got_flight_permit, created_at, updated_at)
	VALUES (:id, :name, :description, :type, :engine_type,
		:fuel_or_battery_level, :current_latitude, :current_longitude,
		:communication_frequency_hz, :mission_completion_pct,
		:max_speed_kmh, :max_distance_km, :price_per_hour_usd, :noise_level_db,
		:length_cm, :width_cm, :height_cm, :max_load_kg, :specialization,
		:is_active, :is_on_mission, :got_flight_permit, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		type = EXCLUDED.type,
		engine_type = EXCLUDED.engine_type,
		fuel_or_battery_level = EXCLUDED.fuel_or_battery_level,
		current_latitude = EXCLUDED.current_latitude,
		current_longitude = EXCLUDED.current_longitude,
		communication_frequency_hz = EXCLUDED.communication_frequency_hz,
		mission_completion_pct = EXCLUDED.mission_completion_pct,
		max_speed_kmh = EXCLUDED.max_speed_kmh,
		max_distance_km = EXCLUDED.max_distance_km,
		price_per_hour_usd = EXCLUDED.price_per_hour_usd,
		noise_level_db = EXCLUDED.noise_level_db,
		length_cm = EXCLUDED.length_cm,
		width_cm = EXCLUDED.width_cm,
		height_cm = EXCLUDED.height_cm,
		max_load_kg = EXCLUDED.max_load_kg,
		specialization = EXCLUDED.specialization,
		is_active = EXCLUDED.is_active,
		is_on_mission = EXCLUDED.is_on_mission,
		got_flight_permit = EXCLUDED.got_flight_permit,
		updated_at = EXCLUDED.updated_at`
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *droneRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Drone, error) {
	var d Drone
	query := fmt.Sprintf(`SELECT %s FROM drones d WHERE d.id = $1`, columns)
	err := sqlx.GetContext(ctx, ext, &d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.DroneNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *droneRepository) ListActive(ctx context.Context, ext sqlx.ExtContext, page, limit int) ([]*Drone, int, error) {
	offset := (page - 1) * limit

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, `SELECT COUNT(*) FROM drones WHERE is_active`); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM drones d WHERE d.is_active ORDER BY d.id LIMIT $1 OFFSET $2`, columns)
	drones := []*Drone{}
	if err := sqlx.SelectContext(ctx, ext, &drones, query, limit, offset); err != nil {
		return nil, 0, err
	}
	return drones, total, nil
}

func (r *droneRepository) ListActiveUpdatedSince(ctx context.Context, ext sqlx.ExtContext, since time.Time) ([]*Drone, error) {
	query := fmt.Sprintf(`SELECT %s FROM drones d WHERE d.is_active AND d.updated_at > $1 ORDER BY d.id`, columns)
	var drones []*Drone
	if err := sqlx.SelectContext(ctx, ext, &drones, query, since); err != nil {
		return nil, err
	}
	return drones, nil
}

// ListNearbyOnMission returns active, on-mission drones assigned to missionID
// whose position falls inside box, excluding excludeID.
func (r *droneRepository) ListNearbyOnMission(ctx context.Context, ext sqlx.ExtContext, missionID, excludeID string, box common.BoundingBox) ([]*Drone, error) {
	query := fmt.Sprintf(`SELECT %s FROM drones d
		JOIN mission_drones md ON md.drone_id = d.id
		WHERE md.mission_id = $1
		  AND d.id <> $2
		  AND d.is_active AND d.is_on_mission
		  AND d.current_latitude BETWEEN $3 AND $4
		  AND d.current_longitude BETWEEN $5 AND $6
		ORDER BY d.id`, columns)
	var drones []*Drone
	err := sqlx.SelectContext(ctx, ext, &drones, query,
		missionID, excludeID, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, err
	}
	return drones, nil
}

// MissingIDs returns the subset of ids that have no drone row.
func (r *droneRepository) MissingIDs(ctx context.Context, ext sqlx.ExtContext, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []string
	if err := sqlx.SelectContext(ctx, ext, &found, `SELECT id FROM drones WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
