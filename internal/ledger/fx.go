package ledger

import (
	"github.com/quotabl/quotabl/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	fx.Provide(repository.ProvideSalesLedger),
	fx.Provide(repository.ProvidePurchaseLedger),
)
