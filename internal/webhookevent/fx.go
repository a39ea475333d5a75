package webhookevent

import (
	"github.com/smallbiznis/reachway/internal/webhookevent/repository"
	"github.com/smallbiznis/reachway/internal/webhookevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhookevent.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
