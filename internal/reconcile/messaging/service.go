package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	cadencedomain "github.com/smallbiznis/reachway/internal/cadence/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	leaddomain "github.com/smallbiznis/reachway/internal/lead/domain"
	"github.com/smallbiznis/reachway/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/reachway/internal/organization/domain"
	webhookdomain "github.com/smallbiznis/reachway/internal/webhookevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider is the ledger namespace for messaging sub-events.
const Provider = "whatsapp"

// ErrUnknownChannel is returned when a delivery references a business phone
// number no organization owns.
var ErrUnknownChannel = errors.New("unknown_messaging_channel")

// statusInteractionType maps provider delivery statuses onto interaction
// types. Unlisted statuses are skipped without touching the ledger.
var statusInteractionType = map[string]string{
	"sent":      cadencedomain.InteractionSent,
	"delivered": cadencedomain.InteractionDelivered,
	"read":      cadencedomain.InteractionOpened,
	"failed":    cadencedomain.InteractionFailed,
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Ledger  webhookdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	ledger  webhookdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reconcile.messaging"),
		genID:   p.GenID,
		clock:   p.Clock,
		ledger:  p.Ledger,
		metrics: p.Metrics,
	}
}

// ProcessWebhook walks every sub-event in the envelope. Sub-events are
// independent: one failing or deduping never blocks the rest, and correlation
// misses are logged and dropped rather than surfaced as retryable errors.
func (s *Service) ProcessWebhook(ctx context.Context, payload WebhookPayload) error {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			orgID, err := s.resolveOrg(ctx, change.Value.Metadata.PhoneNumberID)
			if err != nil {
				if errors.Is(err, ErrUnknownChannel) {
					s.log.Warn("delivery for unknown business number",
						zap.String("phone_number_id", change.Value.Metadata.PhoneNumberID),
					)
					continue
				}
				return err
			}

			for _, st := range change.Value.Statuses {
				if err := s.HandleStatus(ctx, orgID, st); err != nil {
					return err
				}
			}
			for _, msg := range change.Value.Messages {
				if err := s.HandleInboundMessage(ctx, orgID, msg); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Service) resolveOrg(ctx context.Context, phoneNumberID string) (snowflake.ID, error) {
	if strings.TrimSpace(phoneNumberID) == "" {
		return 0, ErrUnknownChannel
	}
	var channel orgdomain.MessagingChannel
	err := s.db.WithContext(ctx).
		Where("phone_number_id = ?", phoneNumberID).
		First(&channel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUnknownChannel
	}
	if err != nil {
		return 0, err
	}
	return channel.OrgID, nil
}

// HandleStatus applies one delivery-status update to the interaction that was
// recorded when the message was sent. Statuses accumulate on the same row, so
// this is an update keyed by external id, never an insert.
func (s *Service) HandleStatus(ctx context.Context, orgID snowflake.ID, st StatusEvent) error {
	interactionType, ok := statusInteractionType[st.Status]
	if !ok {
		s.log.Debug("unmapped delivery status", zap.String("status", st.Status))
		return nil
	}

	inserted, err := s.ledger.MarkProcessed(ctx, Provider,
		webhookdomain.StatusEventID(st.ID, st.Status), "status", nil)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	res := s.db.WithContext(ctx).
		Model(&cadencedomain.Interaction{}).
		Where("org_id = ? AND external_id = ? AND channel = ?", orgID, st.ID, cadencedomain.ChannelWhatsApp).
		Update("type", interactionType)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		s.log.Warn("status update matched no interaction",
			zap.String("org_id", orgID.String()),
			zap.String("external_id", st.ID),
			zap.String("status", st.Status),
		)
	}
	return nil
}

// HandleInboundMessage correlates one inbound message with a lead through
// phone-candidate matching, records a replied interaction and closes the
// lead's newest active enrollment.
func (s *Service) HandleInboundMessage(ctx context.Context, orgID snowflake.ID, msg MessageEvent) error {
	inserted, err := s.ledger.MarkProcessed(ctx, Provider,
		webhookdomain.MessageEventID(msg.ID), "message", nil)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	candidates := leaddomain.PhoneCandidates(msg.From)
	if len(candidates) == 0 {
		s.log.Warn("inbound message without usable sender", zap.String("message_id", msg.ID))
		return nil
	}

	var lead leaddomain.Lead
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND phone IN ?", orgID, candidates).
		Order("created_at DESC").
		First(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn("inbound message matched no lead",
			zap.String("org_id", orgID.String()),
			zap.String("from", msg.From),
		)
		return nil
	}
	if err != nil {
		return err
	}

	var enrollment cadencedomain.CadenceEnrollment
	err = s.db.WithContext(ctx).
		Where("org_id = ? AND lead_id = ? AND status = ?", orgID, lead.ID, cadencedomain.EnrollmentActive).
		Order("created_at DESC, id DESC").
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info("reply from lead without active enrollment",
			zap.String("org_id", orgID.String()),
			zap.String("lead_id", lead.ID.String()),
		)
		return nil
	}
	if err != nil {
		return err
	}

	var stepID *snowflake.ID
	var step cadencedomain.CadenceStep
	err = s.db.WithContext(ctx).
		Where("cadence_id = ? AND step_order = ?", enrollment.CadenceID, enrollment.CurrentStep).
		First(&step).Error
	if err == nil {
		stepID = &step.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	cadenceID := enrollment.CadenceID
	interaction := cadencedomain.Interaction{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		LeadID:     lead.ID,
		CadenceID:  &cadenceID,
		StepID:     stepID,
		Channel:    cadencedomain.ChannelWhatsApp,
		Type:       cadencedomain.InteractionReplied,
		ExternalID: msg.ID,
		Metadata: datatypes.JSONMap{
			"detection_method": "webhook",
			"from":             msg.From,
		},
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&interaction).Error; err != nil {
		return err
	}

	// The status guard makes the transition a no-op when another reply path
	// already closed the enrollment.
	res := s.db.WithContext(ctx).
		Model(&cadencedomain.CadenceEnrollment{}).
		Where("id = ? AND status = ?", enrollment.ID, cadencedomain.EnrollmentActive).
		Updates(map[string]any{
			"status":     cadencedomain.EnrollmentReplied,
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.metrics.RecordReplyDetected("webhook")
	}

	s.log.Info("reply reconciled",
		zap.String("org_id", orgID.String()),
		zap.String("lead_id", lead.ID.String()),
		zap.String("enrollment_id", enrollment.ID.String()),
		zap.Bool("transitioned", res.RowsAffected > 0),
	)
	return nil
}
