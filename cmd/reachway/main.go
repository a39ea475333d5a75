package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/reachway/internal/billing"
	"github.com/smallbiznis/reachway/internal/cadence/progression"
	"github.com/smallbiznis/reachway/internal/clock"
	"github.com/smallbiznis/reachway/internal/config"
	"github.com/smallbiznis/reachway/internal/logger"
	"github.com/smallbiznis/reachway/internal/mailbox"
	"github.com/smallbiznis/reachway/internal/migration"
	"github.com/smallbiznis/reachway/internal/observability/metrics"
	"github.com/smallbiznis/reachway/internal/providers/ai"
	"github.com/smallbiznis/reachway/internal/providers/email"
	"github.com/smallbiznis/reachway/internal/quota"
	"github.com/smallbiznis/reachway/internal/ratelimit"
	"github.com/smallbiznis/reachway/internal/reconcile/emailsync"
	reconcilemessaging "github.com/smallbiznis/reachway/internal/reconcile/messaging"
	reconciletelephony "github.com/smallbiznis/reachway/internal/reconcile/telephony"
	"github.com/smallbiznis/reachway/internal/server"
	"github.com/smallbiznis/reachway/internal/webhookevent"
	"github.com/smallbiznis/reachway/internal/worker"
	"github.com/smallbiznis/reachway/pkg/db"
	"go.uber.org/fx"
)

func registerSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		metrics.Module,
		ratelimit.Module,

		// Providers
		email.Module,
		ai.Module,
		mailbox.Module,

		// Domain services
		webhookevent.Module,
		billing.Module,
		quota.Module,
		reconcilemessaging.Module,
		reconciletelephony.Module,
		emailsync.Module,
		progression.Module,
		worker.Module,

		// HTTP entry points
		server.Module,
	)
	app.Run()
}
