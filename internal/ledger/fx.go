package ledger

import (
	"github.com/smallbiznis/reserva/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.store",
	fx.Provide(repository.Provide),
)
