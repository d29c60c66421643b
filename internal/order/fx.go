package order

import (
	"github.com/undangly/undangly/internal/order/repository"
	"github.com/undangly/undangly/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
