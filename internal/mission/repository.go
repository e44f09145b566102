package mission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	domainerrors "drone-fleet/internal/errors"
)

const columns = `m.id, m.name, m.description, m.location_latitude, m.location_longitude,
	m.start_time, m.expected_end_time, m.end_time, m.goal, m.is_completed, m.created_at,
	COALESCE((SELECT array_agg(x.drone_id ORDER BY x.drone_id)
		FROM mission_drones x WHERE x.mission_id = m.id), '{}') AS drone_ids`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, m *Mission) error
	AssignDrones(ctx context.Context, ext sqlx.ExtContext, missionID string, droneIDs []string) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Mission, error)
	List(ctx context.Context, ext sqlx.ExtContext, page, limit int) ([]*Mission, int, error)
	ListDueForIdleDrones(ctx context.Context, ext sqlx.ExtContext, now time.Time) ([]*DueAssignment, error)
	FindActiveForDrone(ctx context.Context, ext sqlx.ExtContext, droneID string, now time.Time) (*Mission, error)
	MarkDroneReturned(ctx context.Context, ext sqlx.ExtContext, missionID, droneID string, at time.Time) error
	MarkCompletedIfAllDronesIdle(ctx context.Context, ext sqlx.ExtContext, missionID string, at time.Time) (bool, error)
}

type missionRepository struct{}

func NewRepository() Repository {
	return &missionRepository{}
}

func (r *missionRepository) Create(ctx context.Context, ext sqlx.ExtContext, m *Mission) error {
	const query = `INSERT INTO missions (id, name, description, location_latitude, location_longitude,
			start_time, expected_end_time, end_time, goal, is_completed, created_at)
		VALUES (:id, :name, :description, :location_latitude, :location_longitude,
			:start_time, :expected_end_time, :end_time, :goal, :is_completed, :created_at)`

	_, err := sqlx.NamedExecContext(ctx, ext, query, m)
	return err
}

func (r *missionRepository) AssignDrones(ctx context.Context, ext sqlx.ExtContext, missionID string, droneIDs []string) error {
	if len(droneIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO mission_drones (mission_id, drone_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`
	_, err := ext.ExecContext(ctx, query, missionID, pq.Array(droneIDs))
	return err
}

func (r *missionRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id string) (*Mission, error) {
	var m Mission
	query := fmt.Sprintf(`SELECT %s FROM missions m WHERE m.id = $1`, columns)
	err := sqlx.GetContext(ctx, ext, &m, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.MissionNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *missionRepository) List(ctx context.Context, ext sqlx.ExtContext, page, limit int) ([]*Mission, int, error) {
	offset := (page - 1) * limit

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, `SELECT COUNT(*) FROM missions`); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM missions m ORDER BY m.start_time DESC, m.id LIMIT $1 OFFSET $2`, columns)
	missions := []*Mission{}
	if err := sqlx.SelectContext(ctx, ext, &missions, query, limit, offset); err != nil {
		return nil, 0, err
	}
	return missions, total, nil
}

// ListDueForIdleDrones returns one row per (idle drone, due mission) pair.
// A drone is idle when it is active and not on a mission; a mission is due
// when it has started, is not completed and the drone has not already come
// back from it. Rows are grouped by drone and ordered by start time within
// each drone.
func (r *missionRepository) ListDueForIdleDrones(ctx context.Context, ext sqlx.ExtContext, now time.Time) ([]*DueAssignment, error) {
	query := fmt.Sprintf(`SELECT a.drone_id AS assigned_drone_id, %s
		FROM mission_drones a
		JOIN missions m ON m.id = a.mission_id
		JOIN drones d ON d.id = a.drone_id
		WHERE d.is_active AND NOT d.is_on_mission
		  AND NOT m.is_completed
		  AND m.start_time <= $1
		  AND a.returned_at IS NULL
		ORDER BY a.drone_id, m.start_time, m.id`, columns)
	var rows []*DueAssignment
	if err := sqlx.SelectContext(ctx, ext, &rows, query, now); err != nil {
		return nil, err
	}
	return rows, nil
}

// FindActiveForDrone returns the earliest started, still open mission the
// drone is assigned to and has not come back from.
func (r *missionRepository) FindActiveForDrone(ctx context.Context, ext sqlx.ExtContext, droneID string, now time.Time) (*Mission, error) {
	var m Mission
	query := fmt.Sprintf(`SELECT %s
		FROM missions m
		JOIN mission_drones a ON a.mission_id = m.id
		WHERE a.drone_id = $1
		  AND NOT m.is_completed
		  AND a.returned_at IS NULL
		  AND m.start_time <= $2
		ORDER BY m.start_time, m.id
		LIMIT 1`, columns)
	err := sqlx.GetContext(ctx, ext, &m, query, droneID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NoActiveMission(droneID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *missionRepository) MarkDroneReturned(ctx context.Context, ext sqlx.ExtContext, missionID, droneID string, at time.Time) error {
	const query = `UPDATE mission_drones SET returned_at = $3
		WHERE mission_id = $1 AND drone_id = $2 AND returned_at IS NULL`
	_, err := ext.ExecContext(ctx, query, missionID, droneID, at)
	return err
}

// MarkCompletedIfAllDronesIdle closes the mission when none of its assigned
// drones is on a mission. It reports whether this call closed it.
func (r *missionRepository) MarkCompletedIfAllDronesIdle(ctx context.Context, ext sqlx.ExtContext, missionID string, at time.Time) (bool, error) {
	const query = `UPDATE missions m SET is_completed = TRUE, end_time = $2
		WHERE m.id = $1
		  AND NOT m.is_completed
		  AND NOT EXISTS (
			SELECT 1 FROM mission_drones a
			JOIN drones d ON d.id = a.drone_id
			WHERE a.mission_id = m.id AND d.is_on_mission
		  )`
	res, err := ext.ExecContext(ctx, query, missionID, at)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
