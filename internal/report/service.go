package report

import (
	"context"
	"log/slog"
	"time"

	domainerrors "drone-fleet/internal/errors"
)

// Store persists reports. CreateReport writes the report and its images
// atomically and returns a CONFLICT when the mission already has a report.
type Store interface {
	FindReport(ctx context.Context, missionID string) (*Report, error)
	CreateReport(ctx context.Context, r *Report) error
}

type Service interface {
	// Submit stores the report unless the mission already has one. created
	// is false for a duplicate, which is not an error.
	Submit(ctx context.Context, p *SubmitPayload) (created bool, err error)
	GetByMissionID(ctx context.Context, missionID string) (*Report, error)
}

type service struct {
	store  Store
	logger *slog.Logger
}

func NewReportService(store Store, logger *slog.Logger) Service {
	return &service{store: store, logger: logger}
}

func (s *service) Submit(ctx context.Context, p *SubmitPayload) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	existing, err := s.store.FindReport(ctx, p.MissionID)
	if err != nil && !domainerrors.IsNotFound(err) {
		return false, domainerrors.NewStore("failed to look up mission report", err)
	}
	if existing != nil {
		s.logDuplicate(ctx, p)
		return false, nil
	}

	rep := NewReport(p.MissionID, p.DroneID, p.ReportContent, p.ImagesBlobBase64, time.Now())
	if err := s.store.CreateReport(ctx, rep); err != nil {
		// Lost a race against a concurrent submission for the same mission.
		if domainerrors.IsCode(err, domainerrors.ErrConflict) {
			s.logDuplicate(ctx, p)
			return false, nil
		}
		return false, domainerrors.NewStore("failed to store mission report", err)
	}

	s.logger.InfoContext(ctx, "mission report stored",
		slog.String("mission_id", p.MissionID),
		slog.String("drone_id", p.DroneID),
		slog.Int("images", len(rep.Images)),
	)
	return true, nil
}

func (s *service) logDuplicate(ctx context.Context, p *SubmitPayload) {
	s.logger.WarnContext(ctx, "mission report already exists, dropping duplicate",
		slog.String("mission_id", p.MissionID),
		slog.String("drone_id", p.DroneID),
	)
}

func (s *service) GetByMissionID(ctx context.Context, missionID string) (*Report, error) {
	rep, err := s.store.FindReport(ctx, missionID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, domainerrors.NewStore("failed to load mission report", err)
	}
	return rep, nil
}
