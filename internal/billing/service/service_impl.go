package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reachway/internal/billing/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billing.service"),
		clock: p.Clock,
	}
}

func (s *Service) ActivePlanForOrg(ctx context.Context, orgID snowflake.ID) (*domain.Plan, error) {
	if orgID == 0 {
		return nil, domain.ErrNoActivePlan
	}

	var plan domain.Plan
	err := s.db.WithContext(ctx).Raw(
		`SELECT p.id, p.code, p.name, p.messaging_credit_limit, p.ai_daily_limit, p.created_at
		 FROM subscriptions s
		 JOIN plans p ON p.id = s.plan_id
		 WHERE s.org_id = ? AND s.status = ?
		 ORDER BY s.created_at DESC
		 LIMIT 1`,
		orgID,
		domain.SubscriptionActive,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, domain.ErrNoActivePlan
	}
	return &plan, nil
}

func (s *Service) ApplyPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	ref := strings.TrimSpace(event.SubscriptionRef)
	if ref == "" || event.NewStatus == "" {
		return domain.ErrInvalidEvent
	}

	var sub domain.Subscription
	err := s.db.WithContext(ctx).
		Where("external_ref = ?", ref).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("payment event references unknown subscription",
				zap.String("event_type", event.Type),
				zap.String("subscription_ref", ref),
			)
			return domain.ErrUnknownReference
		}
		return err
	}

	if sub.Status == event.NewStatus {
		return nil
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?`,
		event.NewStatus,
		s.clock.Now(),
		sub.ID,
	).Error
}
