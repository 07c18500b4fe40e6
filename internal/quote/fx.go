package quote

import (
	"github.com/quotabl/quotabl/internal/quote/pdf"
	"github.com/quotabl/quotabl/internal/quote/repository"
	"github.com/quotabl/quotabl/internal/quote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quote",
	fx.Provide(
		repository.NewClientDirectory,
		repository.NewProductCatalog,
		repository.NewSupplierDirectory,
		repository.NewRateSource,
		repository.NewTransportRater,
		repository.NewDraftStore,
		pdf.New,
		service.New,
	),
)
