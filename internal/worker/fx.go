package worker

import "go.uber.org/fx"

var Module = fx.Module("worker",
	fx.Provide(NewSelfTrigger),
	fx.Provide(NewReplyPoller),
	fx.Provide(NewEnrichmentBatcher),
)
