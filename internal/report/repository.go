package report

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	domainerrors "drone-fleet/internal/errors"
)

const uniqueViolation = "23505"

type Repository interface {
	GetByMissionID(ctx context.Context, ext sqlx.ExtContext, missionID string) (*Report, error)
	Create(ctx context.Context, ext sqlx.ExtContext, r *Report) error
	CreateImages(ctx context.Context, ext sqlx.ExtContext, images []Image) error
}

type reportRepository struct{}

func NewRepository() Repository {
	return &reportRepository{}
}

func (r *reportRepository) GetByMissionID(ctx context.Context, ext sqlx.ExtContext, missionID string) (*Report, error) {
	var rep Report
	err := sqlx.GetContext(ctx, ext, &rep,
		`SELECT id, mission_id, drone_id, report_content, report_date FROM mission_reports WHERE mission_id = $1`, missionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ReportNotFound(missionID)
	}
	if err != nil {
		return nil, err
	}

	rep.Images = []Image{}
	err = sqlx.SelectContext(ctx, ext, &rep.Images,
		`SELECT id, report_id, image_blob_base64 FROM report_images WHERE report_id = $1 ORDER BY id`, rep.ID)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// Create inserts the report row. A second report for the same mission is
// rejected by the unique index and comes back as a CONFLICT.
func (r *reportRepository) Create(ctx context.Context, ext sqlx.ExtContext, rep *Report) error {
	const query = `INSERT INTO mission_reports (id, mission_id, drone_id, report_content, report_date)
		VALUES (:id, :mission_id, :drone_id, :report_content, :report_date)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, rep)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domainerrors.NewConflict("report for mission " + rep.MissionID + " already exists")
	}
	return err
}

func (r *reportRepository) CreateImages(ctx context.Context, ext sqlx.ExtContext, images []Image) error {
	if len(images) == 0 {
		return nil
	}
	const query = `INSERT INTO report_images (id, report_id, image_blob_base64)
		VALUES (:id, :report_id, :image_blob_base64)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, images)
	return err
}
