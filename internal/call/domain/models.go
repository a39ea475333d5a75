// Package domain contains call activity persistence models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Call statuses. StatusNotConnected is the placeholder set at call creation;
// automated hangup-cause mapping only ever overwrites the placeholder, while a
// manually-set SDR outcome is preserved.
const (
	StatusNotConnected  = "not_connected"
	StatusNoContact     = "no_contact"
	StatusBusy          = "busy"
	StatusRefused       = "refused"
	StatusInvalidNumber = "invalid_number"
	StatusSignificant   = "significant"
	StatusMeeting       = "meeting_scheduled"
)

// MetadataProviderCallID is the metadata key carrying the telephony provider's
// call id, written at call-initiation time when available.
const MetadataProviderCallID = "provider_call_id"

type CallRecord struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	OrgID       snowflake.ID      `gorm:"not null;index"`
	LeadID      snowflake.ID      `gorm:"not null;index"`
	UserID      snowflake.ID      `gorm:"index"`
	Caller      string            `gorm:"type:text;index"` // provider line that placed the call
	PhoneCalled string            `gorm:"type:text;index"`
	Status      string            `gorm:"type:text;not null;default:not_connected"`
	Duration    int               `gorm:"not null;default:0"` // seconds
	AnsweredAt  *time.Time        `gorm:""`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CallRecord) TableName() string { return "call_records" }
