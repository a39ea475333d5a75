package worker

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/smallbiznis/reachway/internal/config"
	leaddomain "github.com/smallbiznis/reachway/internal/lead/domain"
	"github.com/smallbiznis/reachway/internal/observability/metrics"
	"github.com/smallbiznis/reachway/internal/providers/ai"
	quotadomain "github.com/smallbiznis/reachway/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const JobLeadEnrichment = "lead-enrichment"

type EnrichmentParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Quota     quotadomain.Service
	Generator ai.Generator
	Trigger   SelfTrigger
	Metrics   *metrics.Metrics `optional:"true"`
	Cfg       config.Config
}

// EnrichmentBatcher enriches one import's pending leads through the AI
// provider, one bounded batch per run.
type EnrichmentBatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	quota     quotadomain.Service
	generator ai.Generator
	trigger   SelfTrigger
	metrics   *metrics.Metrics
	batchSize int
	itemDelay time.Duration
}

func NewEnrichmentBatcher(p EnrichmentParams) *EnrichmentBatcher {
	return &EnrichmentBatcher{
		db:        p.DB,
		log:       p.Log.Named("worker.enrichment"),
		clock:     p.Clock,
		quota:     p.Quota,
		generator: p.Generator,
		trigger:   p.Trigger,
		metrics:   p.Metrics,
		batchSize: p.Cfg.Worker.BatchSize,
		itemDelay: p.Cfg.Worker.EnrichDelay,
	}
}

// Run processes one batch for the import. The chain stops on its own when no
// pending lead remains or the org's daily AI budget runs out; budget-stopped
// leads stay pending for the next day's kick-off.
func (w *EnrichmentBatcher) Run(ctx context.Context, importID snowflake.ID) error {
	runID := uuid.NewString()
	log := w.log.With(
		zap.String("run_id", runID),
		zap.String("import_id", importID.String()),
	)

	batchSize := w.batchSize
	if batchSize < 1 {
		batchSize = 1
	}

	var leads []leaddomain.Lead
	err := w.db.WithContext(ctx).
		Where("import_id = ? AND enrichment_status = ?", importID, leaddomain.EnrichmentPending).
		Order("created_at ASC, id ASC").
		Limit(batchSize).
		Find(&leads).Error
	if err != nil {
		w.metrics.RecordJobRun(JobLeadEnrichment, "error")
		return err
	}
	if len(leads) == 0 {
		log.Info("no pending leads, chain stops")
		w.metrics.RecordJobRun(JobLeadEnrichment, "ok")
		return nil
	}

	enriched := 0
	for i, lead := range leads {
		if i > 0 && w.itemDelay > 0 {
			time.Sleep(w.itemDelay)
		}

		decision, err := w.quota.CheckRateLimit(ctx, lead.OrgID)
		if err != nil {
			w.metrics.RecordJobRun(JobLeadEnrichment, "error")
			return err
		}
		w.metrics.RecordQuotaDecision("ai_daily", decision.Allowed)
		if !decision.Allowed {
			log.Info("daily ai limit reached, stopping batch",
				zap.String("org_id", lead.OrgID.String()),
				zap.Int64("used", decision.Used),
				zap.Int64("limit", decision.Limit),
			)
			w.metrics.RecordJobRun(JobLeadEnrichment, "budget_stop")
			return nil
		}

		notes, err := w.generator.EnrichLead(ctx, lead)
		if err != nil {
			log.Warn("enrichment failed",
				zap.String("lead_id", lead.ID.String()),
				zap.Error(err),
			)
			if err := w.markLead(ctx, lead.ID, leaddomain.EnrichmentFailed, ""); err != nil {
				return err
			}
			continue
		}
		if err := w.markLead(ctx, lead.ID, leaddomain.EnrichmentDone, notes); err != nil {
			return err
		}
		enriched++
	}

	log.Info("enrichment batch finished",
		zap.Int("batch", len(leads)),
		zap.Int("enriched", enriched),
	)
	w.metrics.RecordJobRun(JobLeadEnrichment, "ok")

	var remaining int64
	err = w.db.WithContext(ctx).
		Model(&leaddomain.Lead{}).
		Where("import_id = ? AND enrichment_status = ?", importID, leaddomain.EnrichmentPending).
		Count(&remaining).Error
	if err != nil {
		return err
	}
	if remaining > 0 {
		if err := w.trigger.Trigger(ctx, JobLeadEnrichment, map[string]any{
			"importId": importID.String(),
		}); err != nil {
			log.Warn("failed to schedule next enrichment batch", zap.Error(err))
		}
	}
	return nil
}

func (w *EnrichmentBatcher) markLead(ctx context.Context, leadID snowflake.ID, status, notes string) error {
	updates := map[string]any{
		"enrichment_status": status,
		"updated_at":        w.clock.Now(),
	}
	if notes != "" {
		updates["enrichment_notes"] = notes
	}
	return w.db.WithContext(ctx).
		Model(&leaddomain.Lead{}).
		Where("id = ?", leadID).
		Updates(updates).Error
}
