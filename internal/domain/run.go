package domain

import "time"

// RunStatus is the lifecycle state of a reconciliation run.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// ReconcileRun records one reconciliation pass for audit and debugging.
// Successful runs carry the rendered inventory; failed runs carry the error.
type ReconcileRun struct {
	ID            string     `json:"id" db:"id"`
	Instance      string     `json:"instance" db:"instance"`
	Status        RunStatus  `json:"status" db:"status"`
	GroupsUpdated bool       `json:"groups_updated" db:"groups_updated"`
	Inventory     string     `json:"inventory,omitempty" db:"inventory"`
	Error         string     `json:"error,omitempty" db:"error"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
