// Package progression computes the SDR work queue: due enrollments whose
// current step still lacks an interaction.
package progression

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reachway/internal/cadence/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PendingActivity is one human action an SDR owes: execute the current step
// of a due enrollment.
type PendingActivity struct {
	EnrollmentID snowflake.ID `json:"enrollmentId"`
	CadenceID    snowflake.ID `json:"cadenceId"`
	StepID       snowflake.ID `json:"stepId"`
	LeadID       snowflake.ID `json:"leadId"`
	Channel      string       `json:"channel"`
	StepOrder    int          `json:"stepOrder"`
	NextStepDue  *time.Time   `json:"nextStepDue"`
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("cadence.progression"),
		clock: p.Clock,
	}
}

// PendingActivities lists due work for one organization. Steps and
// interactions are fetched in two batch queries and diffed in memory; the
// per-enrollment N+1 this replaces dominated request time on large orgs.
func (s *Service) PendingActivities(ctx context.Context, orgID snowflake.ID) ([]PendingActivity, error) {
	now := s.clock.Now()

	var enrollments []domain.CadenceEnrollment
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND status = ? AND next_step_due IS NOT NULL AND next_step_due <= ?",
			orgID, domain.EnrollmentActive, now).
		Order("next_step_due ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	if len(enrollments) == 0 {
		return []PendingActivity{}, nil
	}

	cadenceIDs := make([]snowflake.ID, 0, len(enrollments))
	seen := map[snowflake.ID]bool{}
	for _, e := range enrollments {
		if !seen[e.CadenceID] {
			seen[e.CadenceID] = true
			cadenceIDs = append(cadenceIDs, e.CadenceID)
		}
	}

	var steps []domain.CadenceStep
	err = s.db.WithContext(ctx).
		Where("cadence_id IN ?", cadenceIDs).
		Find(&steps).Error
	if err != nil {
		return nil, err
	}

	type stepKey struct {
		cadenceID snowflake.ID
		order     int
	}
	stepByOrder := make(map[stepKey]domain.CadenceStep, len(steps))
	automatedOnly := map[snowflake.ID]bool{}
	for _, id := range cadenceIDs {
		automatedOnly[id] = true
	}
	for _, st := range steps {
		stepByOrder[stepKey{st.CadenceID, st.StepOrder}] = st
		if !domain.IsAutomatedChannel(st.Channel) {
			automatedOnly[st.CadenceID] = false
		}
	}

	type doneKey struct {
		cadenceID snowflake.ID
		stepID    snowflake.ID
		leadID    snowflake.ID
	}
	var done []struct {
		CadenceID snowflake.ID
		StepID    snowflake.ID
		LeadID    snowflake.ID
	}
	err = s.db.WithContext(ctx).
		Model(&domain.Interaction{}).
		Select("cadence_id, step_id, lead_id").
		Where("org_id = ? AND cadence_id IN ? AND step_id IS NOT NULL", orgID, cadenceIDs).
		Find(&done).Error
	if err != nil {
		return nil, err
	}
	executed := make(map[doneKey]bool, len(done))
	for _, d := range done {
		executed[doneKey{d.CadenceID, d.StepID, d.LeadID}] = true
	}

	pending := make([]PendingActivity, 0, len(enrollments))
	for _, e := range enrollments {
		// Fully automated cadences never need an SDR.
		if automatedOnly[e.CadenceID] {
			continue
		}
		step, ok := stepByOrder[stepKey{e.CadenceID, e.CurrentStep}]
		if !ok {
			s.log.Warn("enrollment points past its cadence steps",
				zap.String("enrollment_id", e.ID.String()),
				zap.Int("current_step", e.CurrentStep),
			)
			continue
		}
		if executed[doneKey{e.CadenceID, step.ID, e.LeadID}] {
			continue
		}
		pending = append(pending, PendingActivity{
			EnrollmentID: e.ID,
			CadenceID:    e.CadenceID,
			StepID:       step.ID,
			LeadID:       e.LeadID,
			Channel:      step.Channel,
			StepOrder:    step.StepOrder,
			NextStepDue:  e.NextStepDue,
		})
	}
	return pending, nil
}
