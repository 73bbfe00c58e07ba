package treasury

import (
	"github.com/smallbiznis/duesledger/internal/treasury/service"
	"go.uber.org/fx"
)

var Module = fx.Module("treasury.service",
	fx.Provide(service.NewService),
)
