package db

import (
	"time"

	"github.com/google/uuid"
)

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped"
	RunStatusAborted   = "aborted"
)

// Run is one harvest run as recorded in harvest_runs
type Run struct {
	ID           uuid.UUID  `json:"id" yaml:"id"`
	Status       string     `json:"status" yaml:"status"`
	QueueLength  int        `json:"queue_length" yaml:"queue_length"`
	SuccessCount int        `json:"success_count" yaml:"success_count"`
	ErrorCount   int        `json:"error_count" yaml:"error_count"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}
