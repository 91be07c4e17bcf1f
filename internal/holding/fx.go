package holding

import (
	"github.com/smallbiznis/reserva/internal/holding/repository"
	"github.com/smallbiznis/reserva/internal/holding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("holding.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
