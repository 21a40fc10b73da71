package subscription

import (
	"github.com/pillstack/backoffice/internal/subscription/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.store",
	fx.Provide(repository.Provide),
)
