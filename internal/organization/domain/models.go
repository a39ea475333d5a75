// Package domain contains organization and user persistence models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Organization struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Organization) TableName() string { return "organizations" }

// User is an SDR account inside one organization. Users own cadences and the
// mailbox credentials polled for email replies.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrgID     snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text"`
	Email     string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string { return "users" }

// MessagingChannel maps a provider business phone number onto the owning
// organization. Inbound messaging webhooks are org-agnostic; the channel row
// is what scopes them.
type MessagingChannel struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	OrgID              snowflake.ID `gorm:"not null;index"`
	PhoneNumberID      string       `gorm:"type:text;not null;uniqueIndex"`
	DisplayPhoneNumber string       `gorm:"type:text"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MessagingChannel) TableName() string { return "messaging_channels" }
