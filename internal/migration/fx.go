package migration

import (
	billingdomain "github.com/smallbiznis/reachway/internal/billing/domain"
	cadencedomain "github.com/smallbiznis/reachway/internal/cadence/domain"
	calldomain "github.com/smallbiznis/reachway/internal/call/domain"
	"github.com/smallbiznis/reachway/internal/config"
	leaddomain "github.com/smallbiznis/reachway/internal/lead/domain"
	mailboxdomain "github.com/smallbiznis/reachway/internal/mailbox/domain"
	orgdomain "github.com/smallbiznis/reachway/internal/organization/domain"
	quotadomain "github.com/smallbiznis/reachway/internal/quota/domain"
	webhookdomain "github.com/smallbiznis/reachway/internal/webhookevent/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Embedded SQL targets postgres; the sqlite dev database is
			// created straight from the models.
			return conn.AutoMigrate(
				&orgdomain.Organization{},
				&orgdomain.User{},
				&orgdomain.MessagingChannel{},
				&leaddomain.Lead{},
				&cadencedomain.Cadence{},
				&cadencedomain.CadenceStep{},
				&cadencedomain.CadenceEnrollment{},
				&cadencedomain.Interaction{},
				&calldomain.CallRecord{},
				&webhookdomain.ProcessedEvent{},
				&quotadomain.CreditCounter{},
				&quotadomain.DailyUsageCounter{},
				&billingdomain.Plan{},
				&billingdomain.Subscription{},
				&mailboxdomain.MailboxCredential{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
