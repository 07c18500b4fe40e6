package suppliercost

import (
	"github.com/quotabl/quotabl/internal/config"
	suppliercostdomain "github.com/quotabl/quotabl/internal/suppliercost/domain"
	"github.com/quotabl/quotabl/internal/suppliercost/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("suppliercost",
	fx.Provide(repository.ProvideCostSource),
	fx.Provide(func(db *gorm.DB, cfg config.Config) suppliercostdomain.Recommender {
		return repository.NewSQLFunctionRecommender(db, cfg.PricingFunction)
	}),
)
