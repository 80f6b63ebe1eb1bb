package reconcile

import (
	"github.com/viveroverde/vivero/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(service.NewService),
)
