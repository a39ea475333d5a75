// Package domain contains mailbox credential persistence models.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrNoCredential = errors.New("no_mailbox_credential")

// MailboxCredential holds one user's OAuth tokens for the mailbox provider.
// The access token is short-lived and refreshed in place; the refresh token
// is the durable secret.
type MailboxCredential struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"not null;uniqueIndex"`
	Email          string       `gorm:"type:text;not null"`
	AccessToken    string       `gorm:"type:text;not null"`
	RefreshToken   string       `gorm:"type:text;not null"`
	TokenExpiresAt time.Time    `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MailboxCredential) TableName() string { return "mailbox_credentials" }
