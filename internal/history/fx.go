package history

import (
	"github.com/quotabl/quotabl/internal/history/service"
	"go.uber.org/fx"
)

var Module = fx.Module("history.service",
	fx.Provide(service.New),
)
