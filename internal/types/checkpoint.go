package types

import (
	"fmt"
	"time"
)

// Checkpoint status values
const (
	StatusRunning = "running"
	StatusIdle    = "idle"
)

// WorkQueueEntry is one (title, category) pair reconstructed from local filenames,
// together with the video ids already on disk for it.
type WorkQueueEntry struct {
	Title       string   `json:"title" yaml:"title"`
	Category    string   `json:"category" yaml:"category"`
	ExistingIDs *IDSet   `json:"existingIds" yaml:"existingIds"`
	Path        []string `json:"path" yaml:"path"`
}

// HarvestCheckpoint is the durable state of an update run.
// It is read, written and deleted as a whole.
type HarvestCheckpoint struct {
	RunID             string           `json:"runId,omitempty" yaml:"runId,omitempty"`
	Status            string           `json:"status" yaml:"status"`
	Queue             []WorkQueueEntry `json:"queue" yaml:"queue"`
	CurrentIndex      int              `json:"currentIndex" yaml:"currentIndex"`
	SuccessCount      int              `json:"successCount" yaml:"successCount"`
	ErrorCount        int              `json:"errorCount" yaml:"errorCount"`
	GlobalExistingIDs *IDSet           `json:"globalExistingIds" yaml:"globalExistingIds"`
	StartedAt         time.Time        `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Done reports whether every queue entry has been processed.
func (c *HarvestCheckpoint) Done() bool {
	return c.CurrentIndex >= len(c.Queue)
}

// Current returns the entry at CurrentIndex, or nil when the run is done.
func (c *HarvestCheckpoint) Current() *WorkQueueEntry {
	if c.Done() {
		return nil
	}
	return &c.Queue[c.CurrentIndex]
}

// Normalize replaces nil sets and slices with empty ones so the encoded
// document never carries nulls.
func (c *HarvestCheckpoint) Normalize() {
	if c.GlobalExistingIDs == nil {
		c.GlobalExistingIDs = NewIDSet()
	}
	if c.Queue == nil {
		c.Queue = []WorkQueueEntry{}
	}
	for i := range c.Queue {
		if c.Queue[i].ExistingIDs == nil {
			c.Queue[i].ExistingIDs = NewIDSet()
		}
		if c.Queue[i].Path == nil {
			c.Queue[i].Path = []string{}
		}
	}
}

// Validate checks the checkpoint invariants.
func (c *HarvestCheckpoint) Validate() error {
	if c.Status != StatusRunning && c.Status != StatusIdle {
		return fmt.Errorf("invalid checkpoint status %q", c.Status)
	}
	if c.CurrentIndex < 0 || c.CurrentIndex > len(c.Queue) {
		return fmt.Errorf("checkpoint index %d out of range [0, %d]", c.CurrentIndex, len(c.Queue))
	}
	if c.SuccessCount < 0 || c.ErrorCount < 0 {
		return fmt.Errorf("checkpoint counters must be non-negative")
	}
	return nil
}
