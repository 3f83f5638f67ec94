package models

import (
	"time"

	"gorm.io/gorm"
)

// Recipient represents a single contact the engine sequences emails for.
// Recipients are created or updated by any inbound trigger and are never
// deleted here.
type Recipient struct {
	gorm.Model
	Email   string `gorm:"not null;uniqueIndex" json:"email"`
	Name    string `json:"name"`
	Company string `json:"company"`

	// Diagnostic signal counts from the latest assessment, bucketed by
	// severity. Each count is >= 0; validation happens at the trigger
	// boundary before these are written.
	CriticalCount int `gorm:"default:0" json:"critical_count"`
	ElevatedCount int `gorm:"default:0" json:"elevated_count"`
	ModerateCount int `gorm:"default:0" json:"moderate_count"`
	NominalCount  int `gorm:"default:0" json:"nominal_count"`

	// Status flags
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`

	// Metadata
	LastTriggerAt *time.Time `json:"last_trigger_at"`

	// Relations
	Instances []SequenceInstance `gorm:"foreignKey:RecipientEmail;references:Email" json:"instances,omitempty"`
}
