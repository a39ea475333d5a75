package telephony

import "go.uber.org/fx"

var Module = fx.Module("reconcile.telephony",
	fx.Provide(NewService),
)
