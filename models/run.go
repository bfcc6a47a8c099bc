package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type ScrapeRun struct {
	ID               int64      `json:"id" db:"id"`
	Provider         string     `json:"provider" db:"provider"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	PropertiesFound  int        `json:"properties_found" db:"properties_found"`
	BuildingsNew     int        `json:"buildings_new" db:"buildings_new"`
	BuildingsUpdated int        `json:"buildings_updated" db:"buildings_updated"`
	UnitsWritten     int        `json:"units_written" db:"units_written"`
	SpecialsCreated  int        `json:"specials_created" db:"specials_created"`
	SpecialsUpdated  int        `json:"specials_updated" db:"specials_updated"`
	Conflicts        int        `json:"conflicts" db:"conflicts"`
	ErrorsCount      int        `json:"errors_count" db:"errors_count"`
}

// ReachedSites reports whether the run synced at least one building. A run
// that reached nothing says nothing about which specials are still offered.
func (r *ScrapeRun) ReachedSites() bool {
	return r.BuildingsNew+r.BuildingsUpdated > 0
}

type ProviderStats struct {
	Provider          string     `json:"provider" db:"provider"`
	LastRunAt         *time.Time `json:"last_run_at" db:"last_run_at"`
	LastRunStatus     string     `json:"last_run_status" db:"last_run_status"`
	TotalRuns         int        `json:"total_runs" db:"total_runs"`
	SuccessRate       float64    `json:"success_rate" db:"success_rate"`
	AvgRunDurationSec int        `json:"avg_run_duration_sec" db:"avg_run_duration_sec"`
}
