package inventory

import (
	"github.com/viveroverde/vivero/internal/inventory/repository"
	"github.com/viveroverde/vivero/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
