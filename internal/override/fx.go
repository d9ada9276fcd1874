package override

import (
	"github.com/smallbiznis/gatekeeper/internal/override/repository"
	"github.com/smallbiznis/gatekeeper/internal/override/service"
	"go.uber.org/fx"
)

var Module = fx.Module("override.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
