package reservation

import (
	"github.com/pillstack/backoffice/internal/reservation/repository"
	"github.com/pillstack/backoffice/internal/reservation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reservation",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
