// Package realtime streams job progress and queue invalidations to connected
// clients over SSE. The hub is per-process; the bus package fans messages out
// across replicas.
package realtime

import "github.com/google/uuid"

type Event string

const (
	EventJobProgress      Event = "JobProgress"
	EventJobStatusChanged Event = "JobStatusChanged"
	// EventQueueInvalidated tells feed clients their cached session queue is
	// out of date (new facts landed or a gesture moved state).
	EventQueueInvalidated Event = "QueueInvalidated"
)

type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

// JobChannel is the SSE channel for one job's lifecycle.
func JobChannel(jobID uuid.UUID) string { return "job:" + jobID.String() }

// LearnerChannel is the SSE channel for learner-scoped notifications.
func LearnerChannel(learnerID uuid.UUID) string { return "learner:" + learnerID.String() }
