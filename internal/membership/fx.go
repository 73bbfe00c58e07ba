package membership

import (
	"github.com/smallbiznis/duesledger/internal/membership/domain"
	"github.com/smallbiznis/duesledger/internal/membership/repository"
	"github.com/smallbiznis/duesledger/internal/membership/service"
	notificationdomain "github.com/smallbiznis/duesledger/internal/notification/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(repository.NewSource),
	fx.Provide(func(src domain.Source) notificationdomain.RoleResolver { return src }),
	fx.Provide(service.NewService),
)
