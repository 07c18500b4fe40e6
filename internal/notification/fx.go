package notification

import (
	"github.com/quotabl/quotabl/internal/notification/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(
		repository.NewOutboxSink,
	),
)
