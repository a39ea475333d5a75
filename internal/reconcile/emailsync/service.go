// Package emailsync detects email replies by polling mailbox threads for
// messages sent through cadences.
package emailsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	cadencedomain "github.com/smallbiznis/reachway/internal/cadence/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/smallbiznis/reachway/internal/config"
	"github.com/smallbiznis/reachway/internal/mailbox"
	"github.com/smallbiznis/reachway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// replyWindow bounds how far back sent emails are considered. Replies to
// anything older are not worth closing an enrollment over.
const replyWindow = 30 * 24 * time.Hour

// metadataThreadID caches the resolved provider thread id on the sent
// interaction so later polls skip the lookup call.
const metadataThreadID = "thread_id"

// metadataLastChecked records when a candidate was last polled. It is the
// batch cursor: chained runs skip freshly checked candidates and so advance
// through the full candidate set page by page.
const metadataLastChecked = "last_checked_at"

// recheckInterval is how long a checked candidate stays out of the candidate
// set. It only needs to outlast one self-chained sequence of runs; the next
// scheduled tick polls everything again.
const recheckInterval = 10 * time.Minute

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Client  mailbox.Client
	Tokens  mailbox.TokenSource
	Cfg     config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	client    mailbox.Client
	tokens    mailbox.TokenSource
	itemDelay time.Duration
	metrics   *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("reconcile.emailsync"),
		genID:     p.GenID,
		clock:     p.Clock,
		client:    p.Client,
		tokens:    p.Tokens,
		itemDelay: p.Cfg.Worker.ReplyPollDelay,
		metrics:   p.Metrics,
	}
}

type ownedInteraction struct {
	cadencedomain.Interaction
	ownerUserID snowflake.ID
}

// Run polls one batch of sent emails for replies and reports whether more
// work remains. Candidates are sent email interactions inside the reply
// window whose (cadence, lead) pair has no replied interaction yet, grouped
// by cadence owner so each owner's mailbox token is resolved once.
func (s *Service) Run(ctx context.Context, batchSize int) (int, bool, error) {
	if batchSize < 1 {
		batchSize = 1
	}

	candidates, err := s.pendingCandidates(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	batch := candidates
	if len(batch) > batchSize {
		batch = batch[:batchSize]
	}

	tokens := map[snowflake.ID]string{}
	failedOwners := map[snowflake.ID]bool{}
	attempted := 0
	for i, item := range batch {
		if i > 0 && s.itemDelay > 0 {
			time.Sleep(s.itemDelay)
		}
		attempted++

		if failedOwners[item.ownerUserID] {
			s.markChecked(ctx, item.Interaction)
			continue
		}
		token, ok := tokens[item.ownerUserID]
		if !ok {
			token, err = s.tokens.AccessToken(ctx, item.ownerUserID)
			if err != nil {
				// One owner's broken credential must not stall everyone
				// else's reply detection.
				s.log.Warn("mailbox token unavailable, skipping owner",
					zap.String("owner_user_id", item.ownerUserID.String()),
					zap.Error(err),
				)
				failedOwners[item.ownerUserID] = true
				s.markChecked(ctx, item.Interaction)
				continue
			}
			tokens[item.ownerUserID] = token
		}

		if err := s.checkInteraction(ctx, token, item.Interaction); err != nil {
			s.log.Warn("reply check failed",
				zap.String("interaction_id", item.ID.String()),
				zap.Error(err),
			)
		}
	}

	return attempted, attempted < len(candidates), nil
}

type repliedPair struct {
	CadenceID snowflake.ID
	LeadID    snowflake.ID
}

func pairKey(cadenceID, leadID snowflake.ID) string {
	return fmt.Sprintf("%d_%d", cadenceID, leadID)
}

// lastCheckedClause matches candidates never checked or checked before the
// cutoff. The stamp is an RFC3339 UTC string, so lexicographic comparison
// orders correctly on both dialects.
func (s *Service) lastCheckedClause() string {
	if s.db.Dialector.Name() == "postgres" {
		return "(metadata ->> 'last_checked_at' IS NULL OR metadata ->> 'last_checked_at' < ?)"
	}
	return "(json_extract(metadata, '$.last_checked_at') IS NULL OR json_extract(metadata, '$.last_checked_at') < ?)"
}

func (s *Service) pendingCandidates(ctx context.Context) ([]ownedInteraction, error) {
	since := s.clock.Now().Add(-replyWindow)
	checkedBefore := s.clock.Now().Add(-recheckInterval).UTC().Format(time.RFC3339)

	var sent []cadencedomain.Interaction
	err := s.db.WithContext(ctx).
		Where("type = ? AND channel = ? AND external_id <> '' AND cadence_id IS NOT NULL AND created_at >= ?",
			cadencedomain.InteractionSent, cadencedomain.ChannelEmail, since).
		Where(s.lastCheckedClause(), checkedBefore).
		Order("created_at ASC").
		Find(&sent).Error
	if err != nil {
		return nil, err
	}
	if len(sent) == 0 {
		return nil, nil
	}

	var pairs []repliedPair
	err = s.db.WithContext(ctx).
		Model(&cadencedomain.Interaction{}).
		Select("cadence_id, lead_id").
		Where("type = ? AND cadence_id IS NOT NULL", cadencedomain.InteractionReplied).
		Find(&pairs).Error
	if err != nil {
		return nil, err
	}
	replied := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		replied[pairKey(p.CadenceID, p.LeadID)] = true
	}

	cadenceIDs := make([]snowflake.ID, 0, len(sent))
	seen := map[snowflake.ID]bool{}
	for _, i := range sent {
		if i.CadenceID != nil && !seen[*i.CadenceID] {
			seen[*i.CadenceID] = true
			cadenceIDs = append(cadenceIDs, *i.CadenceID)
		}
	}

	var cadences []cadencedomain.Cadence
	err = s.db.WithContext(ctx).
		Select("id, owner_user_id").
		Where("id IN ?", cadenceIDs).
		Find(&cadences).Error
	if err != nil {
		return nil, err
	}
	owners := make(map[snowflake.ID]snowflake.ID, len(cadences))
	for _, c := range cadences {
		owners[c.ID] = c.OwnerUserID
	}

	out := make([]ownedInteraction, 0, len(sent))
	for _, i := range sent {
		if replied[pairKey(*i.CadenceID, i.LeadID)] {
			continue
		}
		owner, ok := owners[*i.CadenceID]
		if !ok {
			continue
		}
		out = append(out, ownedInteraction{Interaction: i, ownerUserID: owner})
	}
	return out, nil
}

// markChecked stamps a candidate that was skipped without a provider call,
// keeping the cursor moving past it. Best effort.
func (s *Service) markChecked(ctx context.Context, sent cadencedomain.Interaction) {
	metadata := sent.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[metadataLastChecked] = s.clock.Now().UTC().Format(time.RFC3339)
	if err := s.db.WithContext(ctx).
		Model(&cadencedomain.Interaction{}).
		Where("id = ?", sent.ID).
		Update("metadata", metadata).Error; err != nil {
		s.log.Warn("failed to stamp checked candidate",
			zap.String("interaction_id", sent.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) checkInteraction(ctx context.Context, token string, sent cadencedomain.Interaction) error {
	metadata := sent.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	// The stamp is written even when the lookup fails, so a stuck candidate
	// cannot pin the batch to the same first page forever.
	metadata[metadataLastChecked] = s.clock.Now().UTC().Format(time.RFC3339)

	threadID, _ := metadata[metadataThreadID].(string)
	var lookupErr error
	if threadID == "" {
		threadID, lookupErr = s.client.ThreadIDForMessage(ctx, token, sent.ExternalID)
		if lookupErr == nil {
			metadata[metadataThreadID] = threadID
		}
	}

	if err := s.db.WithContext(ctx).
		Model(&cadencedomain.Interaction{}).
		Where("id = ?", sent.ID).
		Update("metadata", metadata).Error; err != nil {
		return err
	}

	if errors.Is(lookupErr, mailbox.ErrThreadNotFound) {
		s.log.Debug("sent message not indexed yet", zap.String("external_id", sent.ExternalID))
		return nil
	}
	if lookupErr != nil {
		return lookupErr
	}

	count, err := s.client.ThreadMessageCount(ctx, token, threadID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return nil
	}

	return s.recordReply(ctx, sent, threadID)
}

// recordReply closes the enrollment and logs the reply. The guarded update
// runs first so a reply already detected by another path stays a no-op.
func (s *Service) recordReply(ctx context.Context, sent cadencedomain.Interaction, threadID string) error {
	res := s.db.WithContext(ctx).
		Model(&cadencedomain.CadenceEnrollment{}).
		Where("org_id = ? AND cadence_id = ? AND lead_id = ? AND status = ?",
			sent.OrgID, sent.CadenceID, sent.LeadID, cadencedomain.EnrollmentActive).
		Updates(map[string]any{
			"status":     cadencedomain.EnrollmentReplied,
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	interaction := cadencedomain.Interaction{
		ID:         s.genID.Generate(),
		OrgID:      sent.OrgID,
		LeadID:     sent.LeadID,
		CadenceID:  sent.CadenceID,
		StepID:     sent.StepID,
		Channel:    cadencedomain.ChannelEmail,
		Type:       cadencedomain.InteractionReplied,
		ExternalID: threadID,
		Metadata: map[string]any{
			"detection_method": "email_poll",
			metadataThreadID:   threadID,
		},
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&interaction).Error; err != nil {
		return err
	}
	s.metrics.RecordReplyDetected("email_poll")

	s.log.Info("email reply detected",
		zap.String("org_id", sent.OrgID.String()),
		zap.String("lead_id", sent.LeadID.String()),
		zap.String("thread_id", threadID),
	)
	return nil
}
