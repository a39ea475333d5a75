package progression

import "go.uber.org/fx"

var Module = fx.Module("cadence.progression",
	fx.Provide(NewService),
)
