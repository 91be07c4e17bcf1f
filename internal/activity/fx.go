package activity

import (
	"github.com/smallbiznis/reserva/internal/activity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("activity.service",
	fx.Provide(service.New),
)
