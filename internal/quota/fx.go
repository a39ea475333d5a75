package quota

import (
	"github.com/smallbiznis/reachway/internal/config"
	"github.com/smallbiznis/reachway/internal/providers/email"
	"github.com/smallbiznis/reachway/internal/quota/domain"
	"github.com/smallbiznis/reachway/internal/quota/notify"
	"github.com/smallbiznis/reachway/internal/quota/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("quota.service",
	fx.Provide(func(log *zap.Logger, provider email.Provider, cfg config.Config) domain.Notifier {
		return notify.NewEmailNotifier(log, provider, cfg.SMTP.AlertTo)
	}),
	fx.Provide(service.NewService),
)
