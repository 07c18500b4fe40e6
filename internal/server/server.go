package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quotabl/quotabl/internal/config"
	pricingdomain "github.com/quotabl/quotabl/internal/pricing/domain"
	quotedomain "github.com/quotabl/quotabl/internal/quote/domain"
	"github.com/quotabl/quotabl/internal/ratelimit"
	validationdomain "github.com/quotabl/quotabl/internal/validation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	log           *zap.Logger
	pricingSvc    pricingdomain.Service
	validationSvc validationdomain.Service
	quoteEngine   quotedomain.Engine
	limiter       *ratelimit.TokenBucket
}

type ServerParams struct {
	fx.In

	Engine        *gin.Engine
	Log           *zap.Logger
	PricingSvc    pricingdomain.Service
	ValidationSvc validationdomain.Service
	QuoteEngine   quotedomain.Engine
	Limiter       *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Engine,
		log:           p.Log.Named("server"),
		pricingSvc:    p.PricingSvc,
		validationSvc: p.ValidationSvc,
		quoteEngine:   p.QuoteEngine,
		limiter:       p.Limiter,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1")

	pricing := v1.Group("/pricing")
	pricing.POST("/calculate", s.RateLimit("pricing_calculate", 10, 20), s.CalculatePrice)
	pricing.GET("/decisions", s.ListDecisions)
	pricing.GET("/decisions/:id", s.GetDecision)
	pricing.POST("/decisions/:id/override", s.OverrideDecision)
	pricing.GET("/statistics", s.PricingStatistics)

	validations := v1.Group("/validations")
	validations.GET("", s.ListValidations)
	validations.GET("/statistics", s.ValidationStatistics)
	validations.GET("/:id", s.GetValidation)
	validations.POST("/:id/decision", s.DecideValidation)
	validations.POST("/expire", s.ExpireValidations)

	quotes := v1.Group("/quotes")
	quotes.POST("", s.RateLimit("quote_run", 5, 10), s.CreateQuote)
	quotes.GET("", s.ListQuotes)
	quotes.GET("/:id", s.GetQuote)
	quotes.GET("/:id/document", s.GetQuoteDocument)
}
