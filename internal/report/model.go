package report

import (
	"time"

	"github.com/google/uuid"
)

// Report is one drone's after-action report. There is at most one per
// mission.
type Report struct {
	ID            string    `db:"id" json:"id"`
	MissionID     string    `db:"mission_id" json:"missionId"`
	DroneID       string    `db:"drone_id" json:"droneId"`
	ReportContent *string   `db:"report_content" json:"reportContent,omitempty"`
	ReportDate    time.Time `db:"report_date" json:"reportDate"`
	Images        []Image   `db:"-" json:"images"`
}

type Image struct {
	ID              string `db:"id" json:"id"`
	ReportID        string `db:"report_id" json:"reportId"`
	ImageBlobBase64 string `db:"image_blob_base64" json:"imageBlobBase64"`
}

func NewReport(missionID, droneID string, content *string, images []string, at time.Time) *Report {
	r := &Report{
		ID:            uuid.New().String(),
		MissionID:     missionID,
		DroneID:       droneID,
		ReportContent: content,
		ReportDate:    at,
		Images:        make([]Image, 0, len(images)),
	}
	for _, blob := range images {
		r.Images = append(r.Images, Image{
			ID:              uuid.New().String(),
			ReportID:        r.ID,
			ImageBlobBase64: blob,
		})
	}
	return r
}
