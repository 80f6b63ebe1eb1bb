package checkout

import (
	"github.com/viveroverde/vivero/internal/checkout/repository"
	"github.com/viveroverde/vivero/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
