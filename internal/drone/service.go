package drone

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/redis"
)

type Service interface {
	GetByID(ctx context.Context, id string) (*Drone, error)
	ListActive(ctx context.Context, page, limit int) ([]*Drone, int, error)
	GetDroneLocation(ctx context.Context, id string) (*LocationResponse, error)
	ListActiveUpdatedSince(ctx context.Context, since time.Time) ([]*Drone, error)
}

type locationCache interface {
	Get(ctx context.Context, droneID string) (*redis.CachedDroneLocation, error)
}

type service struct {
	repo  Repository
	db    *sqlx.DB
	cache locationCache
}

func NewDroneService(repo Repository, db *sqlx.DB, cache locationCache) Service {
	return &service{repo: repo, db: db, cache: cache}
}

func (s *service) GetByID(ctx context.Context, id string) (*Drone, error) {
	d, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, domainerrors.NewStore("failed to load drone", err)
	}
	return d, nil
}

func (s *service) ListActive(ctx context.Context, page, limit int) ([]*Drone, int, error) {
	drones, total, err := s.repo.ListActive(ctx, s.db, page, limit)
	if err != nil {
		return nil, 0, domainerrors.NewStore("failed to list drones", err)
	}
	return drones, total, nil
}

// GetDroneLocation prefers the cached position written on every telemetry
// update and falls back to the stored record.
func (s *service) GetDroneLocation(ctx context.Context, id string) (*LocationResponse, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil && cached != nil {
			return &LocationResponse{DroneID: id, Lat: cached.Lat, Lng: cached.Lng, Source: "cache", AsOf: cached.Timestamp}, nil
		}
	}

	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LocationResponse{DroneID: id, Lat: d.CurrentLatitude, Lng: d.CurrentLongitude, Source: "store", AsOf: d.UpdatedAt}, nil
}

// ListActiveUpdatedSince returns active drones changed after since. A zero
// since returns every active drone.
func (s *service) ListActiveUpdatedSince(ctx context.Context, since time.Time) ([]*Drone, error) {
	drones, err := s.repo.ListActiveUpdatedSince(ctx, s.db, since)
	if err != nil {
		return nil, domainerrors.NewStore("failed to list updated drones", err)
	}
	return drones, nil
}
