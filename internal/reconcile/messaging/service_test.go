package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	cadencedomain "github.com/smallbiznis/reachway/internal/cadence/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	leaddomain "github.com/smallbiznis/reachway/internal/lead/domain"
	orgdomain "github.com/smallbiznis/reachway/internal/organization/domain"
	webhookdomain "github.com/smallbiznis/reachway/internal/webhookevent/domain"
	webhookrepo "github.com/smallbiznis/reachway/internal/webhookevent/repository"
	webhooksvc "github.com/smallbiznis/reachway/internal/webhookevent/service"
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
		&webhookdomain.ProcessedEvent{},
		&orgdomain.MessagingChannel{},
		&leaddomain.Lead{},
		&cadencedomain.Cadence{},
		&cadencedomain.CadenceStep{},
		&cadencedomain.CadenceEnrollment{},
		&cadencedomain.Interaction{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))

	ledger := webhooksvc.NewService(webhooksvc.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  webhookrepo.Provide(),
	})

	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Ledger: ledger,
	})

	f := &fixture{db: db, svc: svc, node: node, clock: fake, orgID: node.Generate()}
	require.NoError(t, db.Create(&orgdomain.MessagingChannel{
		ID:            node.Generate(),
		OrgID:         f.orgID,
		PhoneNumberID: "pn-100",
		CreatedAt:     fake.Now(),
	}).Error)
	return f
}

func (f *fixture) seedLead(t *testing.T, phone string) leaddomain.Lead {
	t.Helper()
	lead := leaddomain.Lead{
		ID:    f.node.Generate(),
		OrgID: f.orgID,
		Name:  "Test Lead",
		Phone: phone,
	}
	require.NoError(t, f.db.Create(&lead).Error)
	return lead
}

func (f *fixture) seedEnrollment(t *testing.T, leadID snowflake.ID, currentStep int, channel string) (cadencedomain.CadenceEnrollment, cadencedomain.CadenceStep) {
	t.Helper()
	cadence := cadencedomain.Cadence{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		OwnerUserID: f.node.Generate(),
		Name:        "Outbound Q2",
	}
	require.NoError(t, f.db.Create(&cadence).Error)

	step := cadencedomain.CadenceStep{
		ID:        f.node.Generate(),
		CadenceID: cadence.ID,
		StepOrder: currentStep,
		Channel:   channel,
	}
	require.NoError(t, f.db.Create(&step).Error)

	enrollment := cadencedomain.CadenceEnrollment{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		CadenceID:   cadence.ID,
		LeadID:      leadID,
		CurrentStep: currentStep,
		Status:      cadencedomain.EnrollmentActive,
	}
	require.NoError(t, f.db.Create(&enrollment).Error)
	return enrollment, step
}

func inboundPayload(messageID, from string) WebhookPayload {
	return WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []Entry{{
			ID: "entry-1",
			Changes: []Change{{
				Field: "messages",
				Value: Value{
					MessagingProduct: "whatsapp",
					Metadata:         ChannelMetadata{PhoneNumberID: "pn-100"},
					Messages: []MessageEvent{{
						ID:   messageID,
						From: from,
						Type: "text",
						Text: MessageText{Body: "Tenho interesse, pode ligar"},
					}},
				},
			}},
		}},
	}
}

func TestInboundMessage_ClosesActiveEnrollment(t *testing.T) {
	f := newFixture(t)
	lead := f.seedLead(t, "5511999998888")
	enrollment, step := f.seedEnrollment(t, lead.ID, 2, cadencedomain.ChannelWhatsApp)

	require.NoError(t, f.svc.ProcessWebhook(context.Background(), inboundPayload("wamid.1", "+5511999998888")))

	var interactions []cadencedomain.Interaction
	require.NoError(t, f.db.Where("lead_id = ?", lead.ID).Find(&interactions).Error)
	require.Len(t, interactions, 1)
	assert.Equal(t, cadencedomain.InteractionReplied, interactions[0].Type)
	assert.Equal(t, cadencedomain.ChannelWhatsApp, interactions[0].Channel)
	require.NotNil(t, interactions[0].StepID)
	assert.Equal(t, step.ID, *interactions[0].StepID)

	var got cadencedomain.CadenceEnrollment
	require.NoError(t, f.db.First(&got, "id = ?", enrollment.ID).Error)
	assert.Equal(t, cadencedomain.EnrollmentReplied, got.Status)
}

func TestInboundMessage_RedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	lead := f.seedLead(t, "5511999998888")
	f.seedEnrollment(t, lead.ID, 1, cadencedomain.ChannelWhatsApp)

	payload := inboundPayload("wamid.dup", "5511999998888")
	require.NoError(t, f.svc.ProcessWebhook(context.Background(), payload))
	require.NoError(t, f.svc.ProcessWebhook(context.Background(), payload))

	var count int64
	require.NoError(t, f.db.Model(&cadencedomain.Interaction{}).
		Where("lead_id = ?", lead.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInboundMessage_MatchesBareDigitsAgainstPrefixedSender(t *testing.T) {
	f := newFixture(t)
	// Lead stored with country code, sender reported without it.
	lead := f.seedLead(t, "5511999998888")
	f.seedEnrollment(t, lead.ID, 1, cadencedomain.ChannelWhatsApp)

	require.NoError(t, f.svc.ProcessWebhook(context.Background(), inboundPayload("wamid.cc", "11999998888")))

	var count int64
	require.NoError(t, f.db.Model(&cadencedomain.Interaction{}).
		Where("lead_id = ? AND type = ?", lead.ID, cadencedomain.InteractionReplied).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInboundMessage_UnknownSenderIsDiscarded(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.ProcessWebhook(context.Background(), inboundPayload("wamid.miss", "5511000000000")))

	var count int64
	require.NoError(t, f.db.Model(&cadencedomain.Interaction{}).Count(&count).Error)
	assert.Zero(t, count)

	// The sub-event is still recorded so a redelivery does not reprocess it.
	var events int64
	require.NoError(t, f.db.Model(&webhookdomain.ProcessedEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestStatusUpdate_MutatesExistingInteraction(t *testing.T) {
	f := newFixture(t)
	lead := f.seedLead(t, "5511999998888")
	enrollment, step := f.seedEnrollment(t, lead.ID, 1, cadencedomain.ChannelWhatsApp)

	cadenceID := enrollment.CadenceID
	stepID := step.ID
	require.NoError(t, f.db.Create(&cadencedomain.Interaction{
		ID:         f.node.Generate(),
		OrgID:      f.orgID,
		LeadID:     lead.ID,
		CadenceID:  &cadenceID,
		StepID:     &stepID,
		Channel:    cadencedomain.ChannelWhatsApp,
		Type:       cadencedomain.InteractionSent,
		ExternalID: "wamid.out",
		CreatedAt:  f.clock.Now(),
	}).Error)

	statusPayload := func(status string) WebhookPayload {
		return WebhookPayload{
			Entry: []Entry{{Changes: []Change{{Value: Value{
				Metadata: ChannelMetadata{PhoneNumberID: "pn-100"},
				Statuses: []StatusEvent{{ID: "wamid.out", Status: status}},
			}}}}},
		}
	}

	require.NoError(t, f.svc.ProcessWebhook(context.Background(), statusPayload("delivered")))
	require.NoError(t, f.svc.ProcessWebhook(context.Background(), statusPayload("read")))

	var interactions []cadencedomain.Interaction
	require.NoError(t, f.db.Where("external_id = ?", "wamid.out").Find(&interactions).Error)
	require.Len(t, interactions, 1, "status updates must mutate, not insert")
	assert.Equal(t, cadencedomain.InteractionOpened, interactions[0].Type)
}

func TestStatusUpdate_SameStatusDedupesPerMessage(t *testing.T) {
	f := newFixture(t)

	payload := WebhookPayload{
		Entry: []Entry{{Changes: []Change{{Value: Value{
			Metadata: ChannelMetadata{PhoneNumberID: "pn-100"},
			Statuses: []StatusEvent{
				{ID: "wamid.a", Status: "delivered"},
				{ID: "wamid.a", Status: "delivered"},
				{ID: "wamid.b", Status: "delivered"},
			},
		}}}}},
	}
	require.NoError(t, f.svc.ProcessWebhook(context.Background(), payload))

	var events int64
	require.NoError(t, f.db.Model(&webhookdomain.ProcessedEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events, "ledger key is per (message, status)")
}

func TestProcessWebhook_UnknownBusinessNumberIsDropped(t *testing.T) {
	f := newFixture(t)

	payload := inboundPayload("wamid.orphan", "5511999998888")
	payload.Entry[0].Changes[0].Value.Metadata.PhoneNumberID = "pn-unknown"

	require.NoError(t, f.svc.ProcessWebhook(context.Background(), payload))

	var events int64
	require.NoError(t, f.db.Model(&webhookdomain.ProcessedEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}
