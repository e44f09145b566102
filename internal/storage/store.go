package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"drone-fleet/internal/common"
	"drone-fleet/internal/drone"
	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/fleet"
	"drone-fleet/internal/mission"
	"drone-fleet/internal/report"
)

// Store is the Postgres-backed state shared by the coordinator and the
// operator API. It composes the per-entity repositories.
type Store struct {
	db         *sqlx.DB
	droneRepo  drone.Repository
	missionRep mission.Repository
	reportRepo report.Repository
}

var (
	_ fleet.Store  = (*Store)(nil)
	_ report.Store = (*Store)(nil)
)

func New(db *sqlx.DB, droneRepo drone.Repository, missionRepo mission.Repository, reportRepo report.Repository) *Store {
	return &Store{db: db, droneRepo: droneRepo, missionRep: missionRepo, reportRepo: reportRepo}
}

func (s *Store) FindDrone(ctx context.Context, id string) (*drone.Drone, error) {
	d, err := s.droneRepo.GetByID(ctx, s.db, id)
	if err != nil && !domainerrors.IsNotFound(err) {
		return nil, domainerrors.NewStore("failed to load drone", err)
	}
	return d, err
}

func (s *Store) UpsertDrone(ctx context.Context, d *drone.Drone) error {
	if err := s.droneRepo.Upsert(ctx, s.db, d); err != nil {
		return domainerrors.NewStore("failed to upsert drone "+d.ID, err)
	}
	return nil
}

// FindIdleDronesWithDueMissions groups the due (drone, mission) rows by drone,
// keeping the store's start-time ordering within each group.
func (s *Store) FindIdleDronesWithDueMissions(ctx context.Context, now time.Time) ([]fleet.DueDrone, error) {
	rows, err := s.missionRep.ListDueForIdleDrones(ctx, s.db, now)
	if err != nil {
		return nil, domainerrors.NewStore("failed to query due missions", err)
	}

	var out []fleet.DueDrone
	for _, row := range rows {
		m := row.Mission
		if n := len(out); n > 0 && out[n-1].DroneID == row.DroneID {
			out[n-1].Missions = append(out[n-1].Missions, &m)
			continue
		}
		out = append(out, fleet.DueDrone{DroneID: row.DroneID, Missions: []*mission.Mission{&m}})
	}
	return out, nil
}

func (s *Store) FindMissionContaining(ctx context.Context, droneID string) (*mission.Mission, error) {
	m, err := s.missionRep.FindActiveForDrone(ctx, s.db, droneID, time.Now())
	if err != nil && !domainerrors.IsNotFound(err) {
		return nil, domainerrors.NewStore("failed to find mission for drone", err)
	}
	return m, err
}

func (s *Store) FindNearbyDrones(ctx context.Context, missionID, excludeID string, box common.BoundingBox) ([]*drone.Drone, error) {
	drones, err := s.droneRepo.ListNearbyOnMission(ctx, s.db, missionID, excludeID, box)
	if err != nil {
		return nil, domainerrors.NewStore("failed to query nearby drones", err)
	}
	return drones, nil
}

func (s *Store) MarkDroneReturned(ctx context.Context, missionID, droneID string, at time.Time) error {
	if err := s.missionRep.MarkDroneReturned(ctx, s.db, missionID, droneID, at); err != nil {
		return domainerrors.NewStore("failed to record drone return", err)
	}
	return nil
}

func (s *Store) MarkMissionCompletedIfAllDronesIdle(ctx context.Context, missionID string, at time.Time) (bool, error) {
	done, err := s.missionRep.MarkCompletedIfAllDronesIdle(ctx, s.db, missionID, at)
	if err != nil {
		return false, domainerrors.NewStore("failed to complete mission", err)
	}
	return done, nil
}

func (s *Store) FindReport(ctx context.Context, missionID string) (*report.Report, error) {
	r, err := s.reportRepo.GetByMissionID(ctx, s.db, missionID)
	if err != nil && !domainerrors.IsNotFound(err) {
		return nil, domainerrors.NewStore("failed to load mission report", err)
	}
	return r, err
}

// CreateReport writes the report and its images in one transaction.
func (s *Store) CreateReport(ctx context.Context, r *report.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domainerrors.NewStore("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := s.reportRepo.Create(ctx, tx, r); err != nil {
		if domainerrors.IsCode(err, domainerrors.ErrConflict) {
			return err
		}
		return domainerrors.NewStore("failed to create mission report", err)
	}
	if err := s.reportRepo.CreateImages(ctx, tx, r.Images); err != nil {
		return domainerrors.NewStore("failed to store report images", err)
	}
	return tx.Commit()
}
