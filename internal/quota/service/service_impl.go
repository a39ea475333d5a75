package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/reachway/internal/billing/domain"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/smallbiznis/reachway/internal/quota/domain"
	"github.com/smallbiznis/reachway/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingSvc billingdomain.Service
	Notifier   domain.Notifier `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingSvc billingdomain.Service
	notifier   domain.Notifier
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("quota.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingSvc: p.BillingSvc,
		notifier:   p.Notifier,
	}
}

type creditRow struct {
	Used         int64
	PlanLimit    int64
	OverageCount int64
}

// CheckAndDeduct consumes one messaging credit. The counter row is created
// lazily on first use in a period; creation races are resolved by the unique
// (org_id, period) index, with the loser retrying as an increment. The limit
// is soft: usage past it is allowed and counted as overage.
func (s *Service) CheckAndDeduct(ctx context.Context, orgID snowflake.ID) (domain.Decision, error) {
	if orgID == 0 {
		return domain.Decision{}, errors.New("missing_org_id")
	}
	period := s.clock.Now().Format("2006-01")

	// Two passes at most: increment, or create-then-increment after a lost race.
	for attempt := 0; attempt < 2; attempt++ {
		row, found, err := s.incrementCredit(ctx, orgID, period)
		if err != nil {
			return domain.Decision{}, err
		}
		if found {
			decision := domain.Decision{
				Allowed:   true,
				Used:      row.Used,
				Limit:     row.PlanLimit,
				IsOverage: row.Used > row.PlanLimit,
			}
			s.maybeNotifyThreshold(ctx, orgID, row.Used, row.PlanLimit)
			return decision, nil
		}

		plan, err := s.billingSvc.ActivePlanForOrg(ctx, orgID)
		if err != nil {
			if errors.Is(err, billingdomain.ErrNoActivePlan) {
				return domain.Decision{Allowed: false}, nil
			}
			return domain.Decision{}, err
		}

		created, err := s.createCredit(ctx, orgID, period, plan.MessagingCreditLimit)
		if err != nil {
			return domain.Decision{}, err
		}
		if created {
			decision := domain.Decision{
				Allowed:   true,
				Used:      1,
				Limit:     plan.MessagingCreditLimit,
				IsOverage: 1 > plan.MessagingCreditLimit,
			}
			s.maybeNotifyThreshold(ctx, orgID, 1, plan.MessagingCreditLimit)
			return decision, nil
		}
		// A concurrent request created the row first; fall through and
		// increment against it.
	}

	return domain.Decision{}, errors.New("credit_counter_conflict")
}

func (s *Service) incrementCredit(ctx context.Context, orgID snowflake.ID, period string) (creditRow, bool, error) {
	var row creditRow
	err := s.db.WithContext(ctx).Raw(
		`UPDATE credit_counters
		 SET used = used + 1,
		     overage_count = overage_count + CASE WHEN used >= plan_limit THEN 1 ELSE 0 END,
		     updated_at = ?
		 WHERE org_id = ? AND period = ?
		 RETURNING used, plan_limit, overage_count`,
		s.clock.Now(),
		orgID,
		period,
	).Scan(&row).Error
	if err != nil {
		return creditRow{}, false, err
	}
	// used is at least 1 after an increment, so 0 means no row matched.
	return row, row.Used > 0, nil
}

// createCredit inserts the first-use row for a period. A duplicate-key error
// means a concurrent caller created it, which the caller retries as an
// increment.
func (s *Service) createCredit(ctx context.Context, orgID snowflake.ID, period string, limit int64) (bool, error) {
	now := s.clock.Now()
	overage := int64(0)
	if limit < 1 {
		overage = 1
	}
	counter := domain.CreditCounter{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		Period:       period,
		PlanLimit:    limit,
		Used:         1,
		OverageCount: overage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&counter).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// maybeNotifyThreshold fires the 80% alert exactly once per period: only the
// increment that lands on floor(limit*0.8) crosses the threshold.
func (s *Service) maybeNotifyThreshold(ctx context.Context, orgID snowflake.ID, used, limit int64) {
	if s.notifier == nil || limit <= 0 {
		return
	}
	threshold := limit * 8 / 10
	if threshold > 0 && used == threshold {
		s.notifier.NotifyCreditThreshold(ctx, orgID, used, limit)
	}
}

type dailyRow struct {
	Used       int64
	DailyLimit int64
}

// CheckRateLimit consumes one AI generation against the daily hard limit.
// -1 means unlimited; at the limit the request is refused, not counted.
func (s *Service) CheckRateLimit(ctx context.Context, orgID snowflake.ID) (domain.Decision, error) {
	if orgID == 0 {
		return domain.Decision{}, errors.New("missing_org_id")
	}
	date := s.clock.Now().Format("2006-01-02")

	for attempt := 0; attempt < 2; attempt++ {
		row, found, err := s.incrementDaily(ctx, orgID, date)
		if err != nil {
			return domain.Decision{}, err
		}
		if found {
			return domain.Decision{Allowed: true, Used: row.Used, Limit: row.DailyLimit}, nil
		}

		// Either the row is absent or the limit is reached; a plain read
		// distinguishes the two.
		var existing domain.DailyUsageCounter
		err = s.db.WithContext(ctx).
			Where("org_id = ? AND usage_date = ?", orgID, date).
			First(&existing).Error
		if err == nil {
			return domain.Decision{Allowed: false, Used: existing.Used, Limit: existing.DailyLimit}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Decision{}, err
		}

		plan, err := s.billingSvc.ActivePlanForOrg(ctx, orgID)
		if err != nil {
			if errors.Is(err, billingdomain.ErrNoActivePlan) {
				return domain.Decision{Allowed: false}, nil
			}
			return domain.Decision{}, err
		}
		limit := plan.AIDailyLimit
		if limit == 0 {
			return domain.Decision{Allowed: false, Used: 0, Limit: 0}, nil
		}

		created, err := s.createDaily(ctx, orgID, date, limit)
		if err != nil {
			return domain.Decision{}, err
		}
		if created {
			return domain.Decision{Allowed: true, Used: 1, Limit: limit}, nil
		}
	}

	return domain.Decision{}, errors.New("daily_counter_conflict")
}

func (s *Service) incrementDaily(ctx context.Context, orgID snowflake.ID, date string) (dailyRow, bool, error) {
	var row dailyRow
	err := s.db.WithContext(ctx).Raw(
		`UPDATE daily_usage_counters
		 SET used = used + 1, updated_at = ?
		 WHERE org_id = ? AND usage_date = ?
		   AND (daily_limit < 0 OR used < daily_limit)
		 RETURNING used, daily_limit`,
		s.clock.Now(),
		orgID,
		date,
	).Scan(&row).Error
	if err != nil {
		return dailyRow{}, false, err
	}
	return row, row.Used > 0, nil
}

func (s *Service) createDaily(ctx context.Context, orgID snowflake.ID, date string, limit int64) (bool, error) {
	now := s.clock.Now()
	counter := domain.DailyUsageCounter{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		UsageDate:  date,
		Used:       1,
		DailyLimit: limit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&counter).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
