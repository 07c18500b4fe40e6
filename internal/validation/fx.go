package validation

import (
	"github.com/quotabl/quotabl/internal/validation/repository"
	"github.com/quotabl/quotabl/internal/validation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("validation",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
