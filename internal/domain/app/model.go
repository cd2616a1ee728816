package app

import "time"

// App maps to the apps table. One row per deployable service tracked by
// the dashboard; rows with watching set are included in the daily
// end-to-end reports.
type App struct {
	ID                      int64     `db:"id" json:"id"`
	Name                    string    `db:"name" json:"name"`
	Code                    string    `db:"code" json:"code"`
	PipelineURL             *string   `db:"pipeline_url" json:"pipeline_url,omitempty"`
	E2ETriggerConfiguration *string   `db:"e2e_trigger_configuration" json:"e2e_trigger_configuration,omitempty"`
	Watching                bool      `db:"watching" json:"watching"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}
