package emailsync

import "go.uber.org/fx"

var Module = fx.Module("reconcile.emailsync",
	fx.Provide(NewService),
)
