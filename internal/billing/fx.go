package billing

import (
	"github.com/pillstack/backoffice/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.calculator",
	fx.Provide(service.New),
)
