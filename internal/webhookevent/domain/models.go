// Package domain contains the idempotency ledger shared by all webhook providers.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidProvider = errors.New("invalid_provider")
	ErrInvalidEventID  = errors.New("invalid_event_id")
)

// ProcessedEvent records one handled delivery keyed by (provider, event_id).
// Rows are created exactly once and never updated or deleted; the pair is
// unique at the storage layer so concurrent deliveries race on the insert,
// not in application code.
type ProcessedEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	Provider    string         `gorm:"type:text;not null;uniqueIndex:ux_processed_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:text;not null;uniqueIndex:ux_processed_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:text;not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	ProcessedAt time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (ProcessedEvent) TableName() string { return "processed_events" }

// Service is the ledger contract used by every webhook entry point.
type Service interface {
	// MarkProcessed attempts a single conditional insert and reports whether
	// this caller won. A false return means another delivery of the same
	// (provider, eventID) was recorded first.
	MarkProcessed(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error)
	IsProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Repository is the storage access used by the ledger service.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *ProcessedEvent) (bool, error)
	Exists(ctx context.Context, db *gorm.DB, provider, eventID string) (bool, error)
}

// StatusEventID derives a ledger key for one delivery-status sub-event. A
// single webhook call can bundle several status updates for the same message,
// so each (message, status) pair dedupes independently.
func StatusEventID(externalID, status string) string {
	return fmt.Sprintf("status_%s_%s", strings.TrimSpace(externalID), strings.TrimSpace(status))
}

// MessageEventID derives a ledger key for one inbound message sub-event.
func MessageEventID(externalID string) string {
	return fmt.Sprintf("msg_%s", strings.TrimSpace(externalID))
}
