package models

import (
	"time"

	"gorm.io/gorm"
)

// InstanceStatus is the lifecycle status of a whole sequence instance.
type InstanceStatus string

const (
	// InstanceActive means steps are still pending, scheduled or retrying.
	InstanceActive InstanceStatus = "active"
	// InstanceCompleted means every step reached sent or failed.
	InstanceCompleted InstanceStatus = "completed"
	// InstanceConverted means the recipient converted (replied, paid, booked)
	// and remaining step executions must short-circuit without sending.
	InstanceConverted InstanceStatus = "converted"
)

// Terminal reports whether no further sends may happen for this status.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceCompleted || s == InstanceConverted
}

// StepStatus is the per-step delivery status. Transitions are monotonic:
// pending -> scheduled -> sent, or -> failed. No step ever regresses.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepScheduled StepStatus = "scheduled"
	StepSent      StepStatus = "sent"
	StepFailed    StepStatus = "failed"
)

// SequenceInstance is one live run of a sequence type for one recipient.
//
// ActiveKey is "<email>|<type>" while the instance is non-terminal and NULL
// afterwards; the unique index on it is what makes duplicate triggers for the
// same (recipient, type) pair lose the race at the database level.
type SequenceInstance struct {
	gorm.Model
	InstanceID     string `gorm:"type:uuid;not null;uniqueIndex" json:"instance_id"`
	RecipientEmail string `gorm:"not null;index" json:"recipient_email"`
	SequenceType   string `gorm:"not null;index" json:"sequence_type"`

	Segment  string         `gorm:"not null" json:"segment"`
	Status   InstanceStatus `gorm:"default:'active'" json:"status"`
	AnchorAt time.Time      `gorm:"not null" json:"anchor_at"`

	ActiveKey *string `gorm:"uniqueIndex" json:"-"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:InstanceID;references:InstanceID" json:"steps,omitempty"`
}

// SequenceStep tracks delivery state for a single step of an instance.
type SequenceStep struct {
	gorm.Model
	InstanceID string `gorm:"type:uuid;not null;uniqueIndex:ux_instance_step,priority:1" json:"instance_id"`
	StepIndex  int    `gorm:"not null;uniqueIndex:ux_instance_step,priority:2" json:"step_index"`

	Status        StepStatus `gorm:"default:'pending'" json:"status"`
	ScheduledFor  *time.Time `json:"scheduled_for"`
	SentAt        *time.Time `json:"sent_at"`
	ReceiptID     string     `json:"receipt_id"`
	FailureReason string     `json:"failure_reason,omitempty"`
}
