package order

import (
	"github.com/locbyt/valetd/internal/config"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"github.com/locbyt/valetd/internal/order/repository"
	"github.com/locbyt/valetd/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(providePolicy),
	fx.Provide(service.New),
)

func providePolicy(cfg config.Config) orderdomain.TransitionPolicy {
	if cfg.StrictTransitions {
		return orderdomain.StrictPolicy{}
	}
	return orderdomain.PermissivePolicy{}
}
