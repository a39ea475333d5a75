package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/smallbiznis/reachway/internal/webhookevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("webhookevent.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) MarkProcessed(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return false, domain.ErrInvalidProvider
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, domain.ErrInvalidEventID
	}

	record := &domain.ProcessedEvent{
		ID:          s.genID.Generate(),
		Provider:    provider,
		EventID:     eventID,
		EventType:   strings.TrimSpace(eventType),
		ProcessedAt: s.clock.Now(),
	}
	if len(payload) > 0 {
		record.Payload = datatypes.JSON(payload)
	}

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Debug("duplicate webhook delivery",
			zap.String("provider", provider),
			zap.String("event_id", eventID),
		)
	}
	return inserted, nil
}

func (s *Service) IsProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	eventID = strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return false, nil
	}
	return s.repo.Exists(ctx, s.db, provider, eventID)
}
