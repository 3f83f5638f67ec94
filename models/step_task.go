package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskStatus is the queue status of a scheduled step invocation.
type TaskStatus string

const (
	TaskDue     TaskStatus = "due"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	// TaskDead means retries are exhausted or the failure was permanent.
	TaskDead TaskStatus = "dead"
)

// StepTask is one scheduled invocation of the step executor. The step worker
// claims due tasks and invokes the executor at least once per task; the
// executor's own idempotency check is what keeps redelivery safe.
type StepTask struct {
	gorm.Model
	Handle     string `gorm:"type:uuid;not null;uniqueIndex" json:"handle"`
	InstanceID string `gorm:"type:uuid;not null;index" json:"instance_id"`
	StepIndex  int    `gorm:"not null" json:"step_index"`

	FireAt time.Time  `gorm:"not null;index" json:"fire_at"`
	Status TaskStatus `gorm:"default:'due';index" json:"status"`

	Attempts      int        `gorm:"default:0" json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at"`
	ClaimedAt     *time.Time `json:"claimed_at"`
	LastError     string     `json:"last_error,omitempty"`
}
