package pricing

import (
	"github.com/quotabl/quotabl/internal/pricing/repository"
	"github.com/quotabl/quotabl/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
