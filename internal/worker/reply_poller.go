package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/reachway/internal/config"
	"github.com/smallbiznis/reachway/internal/observability/metrics"
	"github.com/smallbiznis/reachway/internal/reconcile/emailsync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobReplyPoll = "reply-poll"

type ReplyPollerParams struct {
	fx.In

	Log       *zap.Logger
	EmailSync *emailsync.Service
	Trigger   SelfTrigger
	Metrics   *metrics.Metrics `optional:"true"`
	Cfg       config.Config
}

// ReplyPoller drains the email reply backlog one batch at a time.
type ReplyPoller struct {
	log       *zap.Logger
	emailSync *emailsync.Service
	trigger   SelfTrigger
	metrics   *metrics.Metrics
	batchSize int
}

func NewReplyPoller(p ReplyPollerParams) *ReplyPoller {
	return &ReplyPoller{
		log:       p.Log.Named("worker.replypoller"),
		emailSync: p.EmailSync,
		trigger:   p.Trigger,
		metrics:   p.Metrics,
		batchSize: p.Cfg.Worker.BatchSize,
	}
}

func (w *ReplyPoller) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := w.log.With(zap.String("run_id", runID))

	processed, more, err := w.emailSync.Run(ctx, w.batchSize)
	if err != nil {
		w.metrics.RecordJobRun(JobReplyPoll, "error")
		log.Error("reply poll batch failed", zap.Error(err))
		return err
	}
	w.metrics.RecordJobRun(JobReplyPoll, "ok")
	log.Info("reply poll batch finished",
		zap.Int("processed", processed),
		zap.Bool("more", more),
	)

	if more {
		if err := w.trigger.Trigger(ctx, JobReplyPoll, nil); err != nil {
			log.Warn("failed to schedule next reply poll batch", zap.Error(err))
		}
	}
	return nil
}
