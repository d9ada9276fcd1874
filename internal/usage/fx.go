package usage

import (
	"github.com/smallbiznis/gatekeeper/internal/usage/domain"
	usagerepository "github.com/smallbiznis/gatekeeper/internal/usage/repository"
	"github.com/smallbiznis/gatekeeper/internal/usage/service"
	"github.com/smallbiznis/gatekeeper/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(usagerepository.Provide),
	fx.Provide(repository.ProvideStore[domain.UsageEvent]),
	fx.Provide(service.New),
)
