package billing

import (
	"github.com/smallbiznis/reachway/internal/billing/adapter"
	"github.com/smallbiznis/reachway/internal/billing/service"
	"github.com/smallbiznis/reachway/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(service.NewService),
	fx.Provide(func(cfg config.Config) *adapter.Adapter {
		return adapter.New(cfg.Payment.WebhookToken)
	}),
)
