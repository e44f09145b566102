package mission

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	domainerrors "drone-fleet/internal/errors"
)

type Service interface {
	Create(ctx context.Context, m *Mission) error
	GetByID(ctx context.Context, id string) (*Mission, error)
	List(ctx context.Context, page, limit int) ([]*Mission, int, error)
}

// droneLookup reports assigned drone ids that have no record. It avoids
// importing the drone package.
type droneLookup interface {
	MissingIDs(ctx context.Context, ext sqlx.ExtContext, ids []string) ([]string, error)
}

type service struct {
	repo   Repository
	drones droneLookup
	db     *sqlx.DB
}

func NewMissionService(repo Repository, drones droneLookup, db *sqlx.DB) Service {
	return &service{repo: repo, drones: drones, db: db}
}

// -------------------------------------------------------------------------------------------------
// Create stores the mission and its drone assignments in one transaction.
// Every assigned drone must already be known.
func (s *service) Create(ctx context.Context, m *Mission) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domainerrors.NewStore("failed to begin transaction", err)
	}
	defer tx.Rollback()

	missing, err := s.drones.MissingIDs(ctx, tx, m.DroneIDs)
	if err != nil {
		return domainerrors.NewStore("failed to look up drones", err)
	}
	if len(missing) > 0 {
		return domainerrors.NewNotFound("drone", strings.Join(missing, ", "))
	}

	if err := s.repo.Create(ctx, tx, m); err != nil {
		return domainerrors.NewStore("failed to create mission", err)
	}
	if err := s.repo.AssignDrones(ctx, tx, m.ID, m.DroneIDs); err != nil {
		return domainerrors.NewStore("failed to assign drones", err)
	}

	if err := tx.Commit(); err != nil {
		return domainerrors.NewStore(fmt.Sprintf("failed to commit mission %s", m.ID), err)
	}
	return nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) GetByID(ctx context.Context, id string) (*Mission, error) {
	m, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, domainerrors.NewStore("failed to load mission", err)
	}
	return m, nil
}

// -------------------------------------------------------------------------------------------------
func (s *service) List(ctx context.Context, page, limit int) ([]*Mission, int, error) {
	missions, total, err := s.repo.List(ctx, s.db, page, limit)
	if err != nil {
		return nil, 0, domainerrors.NewStore("failed to list missions", err)
	}
	return missions, total, nil
}
