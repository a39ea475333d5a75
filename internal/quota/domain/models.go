// Package domain contains the per-organization usage counters and the quota
// service contract.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreditCounter tracks messaging credits for one (org, period). Usage beyond
// PlanLimit is allowed but counted as overage (soft limit). Used is
// monotonically non-decreasing within a period.
type CreditCounter struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	OrgID        snowflake.ID `gorm:"not null;uniqueIndex:ux_credit_counters_org_period,priority:1"`
	Period       string       `gorm:"type:text;not null;uniqueIndex:ux_credit_counters_org_period,priority:2"` // YYYY-MM
	PlanLimit    int64        `gorm:"not null"`
	Used         int64        `gorm:"not null;default:0"`
	OverageCount int64        `gorm:"not null;default:0"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CreditCounter) TableName() string { return "credit_counters" }

// DailyUsageCounter tracks AI generations for one (org, day). DailyLimit -1
// means unlimited; otherwise the limit is hard.
type DailyUsageCounter struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrgID      snowflake.ID `gorm:"not null;uniqueIndex:ux_daily_usage_org_date,priority:1"`
	UsageDate  string       `gorm:"type:text;not null;uniqueIndex:ux_daily_usage_org_date,priority:2"` // YYYY-MM-DD
	Used       int64        `gorm:"not null;default:0"`
	DailyLimit int64        `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (DailyUsageCounter) TableName() string { return "daily_usage_counters" }

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool  `json:"allowed"`
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	IsOverage bool  `json:"is_overage"`
}

// Service enforces org quotas. Both operations record exactly one unit of
// usage per accepted call regardless of race outcome.
type Service interface {
	// CheckAndDeduct consumes one messaging credit (soft limit with overage).
	CheckAndDeduct(ctx context.Context, orgID snowflake.ID) (Decision, error)
	// CheckRateLimit consumes one AI generation against the daily hard limit.
	CheckRateLimit(ctx context.Context, orgID snowflake.ID) (Decision, error)
}

// Notifier receives the one-time 80% threshold alert. Implementations are
// best-effort; failures never fail the deduction.
type Notifier interface {
	NotifyCreditThreshold(ctx context.Context, orgID snowflake.ID, used, limit int64)
}
