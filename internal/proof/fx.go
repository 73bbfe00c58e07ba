package proof

import (
	"github.com/smallbiznis/duesledger/internal/proof/repository"
	"github.com/smallbiznis/duesledger/internal/proof/service"
	"go.uber.org/fx"
)

var Module = fx.Module("proof.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
