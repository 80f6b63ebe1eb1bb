package order

import (
	"github.com/viveroverde/vivero/internal/order/repository"
	"github.com/viveroverde/vivero/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
