// Package domain contains cadence, enrollment and interaction persistence models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Step channels.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelPhone    = "phone"
)

// Enrollment statuses. Transitions are monotonic toward a terminal state
// except paused<->active.
const (
	EnrollmentActive       = "active"
	EnrollmentPaused       = "paused"
	EnrollmentCompleted    = "completed"
	EnrollmentReplied      = "replied"
	EnrollmentBounced      = "bounced"
	EnrollmentUnsubscribed = "unsubscribed"
)

// Interaction types.
const (
	InteractionSent             = "sent"
	InteractionDelivered        = "delivered"
	InteractionOpened           = "opened"
	InteractionClicked          = "clicked"
	InteractionReplied          = "replied"
	InteractionBounced          = "bounced"
	InteractionFailed           = "failed"
	InteractionMeetingScheduled = "meeting_scheduled"
)

// IsAutomatedChannel reports whether a channel executes without human action.
// Phone steps require an SDR to place the call.
func IsAutomatedChannel(channel string) bool {
	return channel == ChannelEmail || channel == ChannelWhatsApp
}

type Cadence struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrgID       snowflake.ID `gorm:"not null;index"`
	OwnerUserID snowflake.ID `gorm:"not null;index"`
	Name        string       `gorm:"type:text;not null"`
	Status      string       `gorm:"type:text;not null;default:active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Cadence) TableName() string { return "cadences" }

// CadenceStep is immutable once any enrollment has progressed past it.
type CadenceStep struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	CadenceID snowflake.ID `gorm:"not null;index"`
	StepOrder int          `gorm:"not null"` // 1-based
	Channel   string       `gorm:"type:text;not null"`
	Template  string       `gorm:"type:text"`
	DelayDays int          `gorm:"not null;default:1"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CadenceStep) TableName() string { return "cadence_steps" }

// CadenceEnrollment is one lead's run through one cadence. At most one
// enrollment per (lead, cadence) should be active at a time; the
// reconciliation engine tolerates violations by picking the newest.
type CadenceEnrollment struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	OrgID        snowflake.ID  `gorm:"not null;index"`
	CadenceID    snowflake.ID  `gorm:"not null;index"`
	LeadID       snowflake.ID  `gorm:"not null;index"`
	CurrentStep  int           `gorm:"not null;default:1"`
	Status       string        `gorm:"type:text;not null;default:active"`
	NextStepDue  *time.Time    `gorm:"index"`
	LossReasonID *snowflake.ID `gorm:""`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CadenceEnrollment) TableName() string { return "cadence_enrollments" }

// Interaction is the append-only outreach event log. Delivery-status updates
// for one logical message mutate the matching row's Type instead of inserting,
// since a message accumulates status over time.
type Interaction struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	OrgID      snowflake.ID      `gorm:"not null;index"`
	LeadID     snowflake.ID      `gorm:"not null;index"`
	CadenceID  *snowflake.ID     `gorm:"index"`
	StepID     *snowflake.ID     `gorm:""`
	Channel    string            `gorm:"type:text;not null"`
	Type       string            `gorm:"type:text;not null"`
	ExternalID string            `gorm:"type:text;index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Interaction) TableName() string { return "interactions" }
