package catalog

import (
	"github.com/pillstack/backoffice/internal/promotion/catalog/repository"
	"github.com/pillstack/backoffice/internal/promotion/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("promotion.catalog",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
