// Package domain contains billing plan and subscription models consumed by
// the quota ledger and the payment webhook.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidEvent     = errors.New("invalid_payment_event")
	ErrUnknownReference = errors.New("unknown_subscription_reference")
	ErrNoActivePlan     = errors.New("no_active_plan")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrEventIgnored     = errors.New("event_ignored")
)

// Subscription statuses driven by payment provider events.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// UnlimitedDaily is the sentinel for plans without a daily AI generation cap.
const UnlimitedDaily int64 = -1

type Plan struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	Code                 string       `gorm:"type:text;not null;uniqueIndex"`
	Name                 string       `gorm:"type:text;not null"`
	MessagingCreditLimit int64        `gorm:"not null;default:0"`
	AIDailyLimit         int64        `gorm:"column:ai_daily_limit;not null;default:0"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Plan) TableName() string { return "plans" }

// Subscription links one organization to its plan. ExternalRef is the payment
// provider's subscription id used to correlate webhook events.
type Subscription struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrgID       snowflake.ID `gorm:"not null;index"`
	PlanID      snowflake.ID `gorm:"not null"`
	Status      string       `gorm:"type:text;not null;default:active"`
	ExternalRef string       `gorm:"type:text;index"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

// PaymentEvent is the provider-neutral shape produced by the webhook adapter.
type PaymentEvent struct {
	ProviderEventID string
	Type            string
	SubscriptionRef string
	NewStatus       string
}

// Service resolves plan limits and applies provider subscription events.
type Service interface {
	// ActivePlanForOrg returns the plan of the org's active subscription, or
	// ErrNoActivePlan when none exists.
	ActivePlanForOrg(ctx context.Context, orgID snowflake.ID) (*Plan, error)
	// ApplyPaymentEvent updates the referenced subscription's status.
	// An unknown reference is a correlation miss, not a failure.
	ApplyPaymentEvent(ctx context.Context, event PaymentEvent) error
}
