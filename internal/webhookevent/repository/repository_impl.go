package repository

import (
	"context"

	"github.com/smallbiznis/reachway/internal/webhookevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.ProcessedEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO processed_events (id, provider, event_id, event_type, payload, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.EventID,
		event.EventType,
		event.Payload,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, provider, eventID string) (bool, error) {
	var exists bool
	err := db.WithContext(ctx).Raw(
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE provider = ? AND event_id = ?)`,
		provider,
		eventID,
	).Scan(&exists).Error
	if err != nil {
		return false, err
	}
	return exists, nil
}
