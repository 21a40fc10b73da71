package payment

import (
	"github.com/pillstack/backoffice/internal/payment/repository"
	"github.com/pillstack/backoffice/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.ledger",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
