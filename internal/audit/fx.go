package audit

import (
	"github.com/viveroverde/vivero/internal/audit/repository"
	"github.com/viveroverde/vivero/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
