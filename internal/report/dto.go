package report

import (
	"encoding/json"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/pkg/validation"
)

// SubmitPayload is a mission report as sent by a drone.
type SubmitPayload struct {
	MissionID        string   `json:"missionId" validate:"required"`
	DroneID          string   `json:"droneId" validate:"required"`
	ReportContent    *string  `json:"reportContent"`
	ImagesBlobBase64 []string `json:"imagesBlobBase64" validate:"omitempty,dive,required"`
}

func (p *SubmitPayload) Validate() error {
	return validation.Struct("invalid mission report", p)
}

// ParseSubmit decodes and validates a report payload.
func ParseSubmit(raw json.RawMessage) (*SubmitPayload, error) {
	if len(raw) == 0 {
		return nil, domainerrors.NewValidation("mission report is missing")
	}
	var p SubmitPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domainerrors.Wrap(domainerrors.ErrValidation, "malformed mission report", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

type ReportResponse struct {
	Report *Report `json:"report"`
}
