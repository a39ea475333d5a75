// Package domain contains lead persistence models and weak-identifier matching.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusNew         = "new"
	StatusContacted   = "contacted"
	StatusQualified   = "qualified"
	StatusUnqualified = "unqualified"
	StatusCustomer    = "customer"
	EnrichmentPending = "pending"
	EnrichmentDone    = "done"
	EnrichmentFailed  = "failed"
	EnrichmentSkipped = "skipped"
)

// Lead is org-scoped and read-only from the reconciliation core's perspective.
// Phone is stored as bare digits including country code (e.g. "5511999998888").
type Lead struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	OrgID            snowflake.ID `gorm:"not null;index"`
	ImportID         snowflake.ID `gorm:"index"`
	Name             string       `gorm:"type:text"`
	Email            string       `gorm:"type:text;index"`
	Phone            string       `gorm:"type:text;index"`
	Company          string       `gorm:"type:text"`
	Position         string       `gorm:"type:text"`
	Status           string       `gorm:"type:text;not null;default:new"`
	EnrichmentStatus string       `gorm:"type:text;not null;default:skipped"`
	EnrichmentNotes  string       `gorm:"type:text"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Lead) TableName() string { return "leads" }
