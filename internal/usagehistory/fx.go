package usagehistory

import (
	"github.com/pillstack/backoffice/internal/usagehistory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usagehistory.ledger",
	fx.Provide(service.New),
)
