package catalog

import (
	"github.com/undangly/undangly/internal/catalog/repository"
	"github.com/undangly/undangly/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
