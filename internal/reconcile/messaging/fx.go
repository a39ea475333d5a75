package messaging

import "go.uber.org/fx"

var Module = fx.Module("reconcile.messaging",
	fx.Provide(NewService),
)
