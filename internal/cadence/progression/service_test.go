package progression

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/reachway/internal/cadence/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	node  *snowflake.Node
	clock *clock.FakeClock
	orgID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Cadence{},
		&domain.CadenceStep{},
		&domain.CadenceEnrollment{},
		&domain.Interaction{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))

	svc := NewService(Params{DB: db, Log: zap.NewNop(), Clock: fake})
	return &fixture{db: db, svc: svc, node: node, clock: fake, orgID: node.Generate()}
}

func (f *fixture) seedCadence(t *testing.T, channels ...string) (domain.Cadence, []domain.CadenceStep) {
	t.Helper()
	cadence := domain.Cadence{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		OwnerUserID: f.node.Generate(),
		Name:        "Mixed touch",
	}
	require.NoError(t, f.db.Create(&cadence).Error)

	steps := make([]domain.CadenceStep, 0, len(channels))
	for i, channel := range channels {
		step := domain.CadenceStep{
			ID:        f.node.Generate(),
			CadenceID: cadence.ID,
			StepOrder: i + 1,
			Channel:   channel,
		}
		require.NoError(t, f.db.Create(&step).Error)
		steps = append(steps, step)
	}
	return cadence, steps
}

func (f *fixture) seedEnrollment(t *testing.T, cadenceID snowflake.ID, currentStep int, due time.Time) domain.CadenceEnrollment {
	t.Helper()
	e := domain.CadenceEnrollment{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		CadenceID:   cadenceID,
		LeadID:      f.node.Generate(),
		CurrentStep: currentStep,
		Status:      domain.EnrollmentActive,
		NextStepDue: &due,
	}
	require.NoError(t, f.db.Create(&e).Error)
	return e
}

func TestPendingActivities_DueStepWithoutInteraction(t *testing.T) {
	f := newFixture(t)
	cadence, steps := f.seedCadence(t, domain.ChannelEmail, domain.ChannelPhone)
	e := f.seedEnrollment(t, cadence.ID, 2, f.clock.Now().Add(-time.Hour))

	pending, err := f.svc.PendingActivities(context.Background(), f.orgID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e.ID, pending[0].EnrollmentID)
	assert.Equal(t, steps[1].ID, pending[0].StepID)
	assert.Equal(t, domain.ChannelPhone, pending[0].Channel)
	assert.Equal(t, 2, pending[0].StepOrder)
}

func TestPendingActivities_ExecutedStepIsExcluded(t *testing.T) {
	f := newFixture(t)
	cadence, steps := f.seedCadence(t, domain.ChannelPhone)
	e := f.seedEnrollment(t, cadence.ID, 1, f.clock.Now().Add(-time.Hour))

	cadenceID := cadence.ID
	stepID := steps[0].ID
	require.NoError(t, f.db.Create(&domain.Interaction{
		ID:        f.node.Generate(),
		OrgID:     f.orgID,
		LeadID:    e.LeadID,
		CadenceID: &cadenceID,
		StepID:    &stepID,
		Channel:   domain.ChannelPhone,
		Type:      domain.InteractionSent,
		CreatedAt: f.clock.Now(),
	}).Error)

	pending, err := f.svc.PendingActivities(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingActivities_FutureDueIsExcluded(t *testing.T) {
	f := newFixture(t)
	cadence, _ := f.seedCadence(t, domain.ChannelPhone)
	f.seedEnrollment(t, cadence.ID, 1, f.clock.Now().Add(time.Hour))

	pending, err := f.svc.PendingActivities(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingActivities_FullyAutomatedCadenceIsExcluded(t *testing.T) {
	f := newFixture(t)
	cadence, _ := f.seedCadence(t, domain.ChannelEmail, domain.ChannelWhatsApp)
	f.seedEnrollment(t, cadence.ID, 1, f.clock.Now().Add(-time.Hour))

	pending, err := f.svc.PendingActivities(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingActivities_OtherOrgIsInvisible(t *testing.T) {
	f := newFixture(t)
	cadence, _ := f.seedCadence(t, domain.ChannelPhone)
	f.seedEnrollment(t, cadence.ID, 1, f.clock.Now().Add(-time.Hour))

	pending, err := f.svc.PendingActivities(context.Background(), f.node.Generate())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingActivities_StepGapIsSkipped(t *testing.T) {
	f := newFixture(t)
	cadence, _ := f.seedCadence(t, domain.ChannelPhone)
	// Enrollment points at step 5 but the cadence only has one step.
	f.seedEnrollment(t, cadence.ID, 5, f.clock.Now().Add(-time.Hour))

	pending, err := f.svc.PendingActivities(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingActivities_SameStepOtherLeadStaysPending(t *testing.T) {
	f := newFixture(t)
	cadence, steps := f.seedCadence(t, domain.ChannelPhone)
	done := f.seedEnrollment(t, cadence.ID, 1, f.clock.Now().Add(-2*time.Hour))
	open := f.seedEnrollment(t, cadence.ID, 1, f.clock.Now().Add(-time.Hour))

	cadenceID := cadence.ID
	stepID := steps[0].ID
	require.NoError(t, f.db.Create(&domain.Interaction{
		ID:        f.node.Generate(),
		OrgID:     f.orgID,
		LeadID:    done.LeadID,
		CadenceID: &cadenceID,
		StepID:    &stepID,
		Channel:   domain.ChannelPhone,
		Type:      domain.InteractionSent,
		CreatedAt: f.clock.Now(),
	}).Error)

	pending, err := f.svc.PendingActivities(context.Background(), f.orgID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, open.ID, pending[0].EnrollmentID)
}
