package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/reachway/internal/billing/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	node  *snowflake.Node
	clock *clock.FakeClock
	orgID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Plan{}, &domain.Subscription{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))

	svc := NewService(Params{DB: db, Log: zap.NewNop(), Clock: fake})
	return &fixture{db: db, svc: svc, node: node, clock: fake, orgID: node.Generate()}
}

func (f *fixture) seedPlan(t *testing.T, code string, credits, daily int64) domain.Plan {
	t.Helper()
	plan := domain.Plan{
		ID:                   f.node.Generate(),
		Code:                 code,
		Name:                 code,
		MessagingCreditLimit: credits,
		AIDailyLimit:         daily,
	}
	require.NoError(t, f.db.Create(&plan).Error)
	return plan
}

func (f *fixture) seedSubscription(t *testing.T, planID snowflake.ID, status, ref string, createdAt time.Time) domain.Subscription {
	t.Helper()
	sub := domain.Subscription{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		PlanID:      planID,
		Status:      status,
		ExternalRef: ref,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	require.NoError(t, f.db.Create(&sub).Error)
	return sub
}

func TestActivePlanForOrg(t *testing.T) {
	f := newFixture(t)
	plan := f.seedPlan(t, "pro", 2500, 50)
	f.seedSubscription(t, plan.ID, domain.SubscriptionActive, "sub_1", time.Now().UTC())

	got, err := f.svc.ActivePlanForOrg(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
	assert.Equal(t, int64(2500), got.MessagingCreditLimit)
	assert.Equal(t, int64(50), got.AIDailyLimit)
}

func TestActivePlanForOrg_NewestActiveWins(t *testing.T) {
	f := newFixture(t)
	old := f.seedPlan(t, "starter", 500, 10)
	current := f.seedPlan(t, "pro", 2500, 50)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.seedSubscription(t, old.ID, domain.SubscriptionActive, "sub_old", base)
	f.seedSubscription(t, current.ID, domain.SubscriptionActive, "sub_new", base.Add(time.Hour))

	got, err := f.svc.ActivePlanForOrg(context.Background(), f.orgID)
	require.NoError(t, err)
	assert.Equal(t, current.ID, got.ID)
}

func TestActivePlanForOrg_NoActiveSubscription(t *testing.T) {
	f := newFixture(t)
	plan := f.seedPlan(t, "pro", 2500, 50)
	f.seedSubscription(t, plan.ID, domain.SubscriptionCanceled, "sub_1", time.Now().UTC())

	_, err := f.svc.ActivePlanForOrg(context.Background(), f.orgID)
	assert.ErrorIs(t, err, domain.ErrNoActivePlan)
}

func TestApplyPaymentEvent(t *testing.T) {
	f := newFixture(t)
	plan := f.seedPlan(t, "pro", 2500, 50)
	sub := f.seedSubscription(t, plan.ID, domain.SubscriptionPastDue, "sub_1", time.Now().UTC())

	err := f.svc.ApplyPaymentEvent(context.Background(), domain.PaymentEvent{
		ProviderEventID: "evt_1",
		Type:            "PAYMENT_CONFIRMED",
		SubscriptionRef: "sub_1",
		NewStatus:       domain.SubscriptionActive,
	})
	require.NoError(t, err)

	var got domain.Subscription
	require.NoError(t, f.db.First(&got, "id = ?", sub.ID).Error)
	assert.Equal(t, domain.SubscriptionActive, got.Status)
	assert.WithinDuration(t, f.clock.Now(), got.UpdatedAt, time.Second)
}

func TestApplyPaymentEvent_UnknownReference(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ApplyPaymentEvent(context.Background(), domain.PaymentEvent{
		ProviderEventID: "evt_1",
		Type:            "PAYMENT_CONFIRMED",
		SubscriptionRef: "sub_missing",
		NewStatus:       domain.SubscriptionActive,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownReference)
}
