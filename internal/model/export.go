package model

import "time"

// ProgressExport is the top-level JSON structure for a journey progress export.
type ProgressExport struct {
	PlantID     string            `json:"plant_id"`
	Journey     string            `json:"journey"`
	GeneratedAt time.Time         `json:"generated_at"`
	Learners    []JourneyProgress `json:"learners"`
}
