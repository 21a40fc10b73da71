package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/pillstack/backoffice/internal/billing"
	"github.com/pillstack/backoffice/internal/config"
	"github.com/pillstack/backoffice/internal/observability/metrics"
	"github.com/pillstack/backoffice/internal/payment"
	paymentservice "github.com/pillstack/backoffice/internal/payment/service"
	"github.com/pillstack/backoffice/internal/promotion/catalog"
	promotiondomain "github.com/pillstack/backoffice/internal/promotion/domain"
	"github.com/pillstack/backoffice/internal/reservation"
	reservationdomain "github.com/pillstack/backoffice/internal/reservation/domain"
	"github.com/pillstack/backoffice/internal/subscription"
	"github.com/pillstack/backoffice/internal/usagehistory"
	"github.com/pillstack/backoffice/internal/user"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	user.Module,
	subscription.Module,
	payment.Module,
	catalog.Module,
	usagehistory.Module,
	billing.Module,
	reservation.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	assignSvc reservationdomain.AssignmentService
	catalog   promotiondomain.Catalog
	payments  *paymentservice.Service
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	AssignSvc reservationdomain.AssignmentService
	Catalog   promotiondomain.Catalog
	Payments  *paymentservice.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http"),
		assignSvc: p.AssignSvc,
		catalog:   p.Catalog,
		payments:  p.Payments,
	}

	svc.registerAdminRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/api")

	// -------- Promotion assignment --------
	admin.GET("/assign-promotion/candidates", s.ListAssignCandidates)
	admin.POST("/assign-promotion", s.AssignPromotion)
	admin.POST("/assign-promotion/single", s.AssignPromotionSingle)
	admin.GET("/assign-promotion/assignments", s.ListPendingAssignments)
	admin.DELETE("/assign-promotion/assignments/:id", s.CancelAssignment)

	// -------- Audit trail --------
	admin.GET("/promotion-applied-history", s.ListAppliedHistory)

	// -------- Catalog --------
	admin.GET("/promotions", s.ListPromotions)
	admin.GET("/promotions/:id", s.GetPromotionByID)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/referral/redeem", s.RedeemReferral)
	api.POST("/payments/events", s.IngestPaymentEvent)
}

func parseSnowflakeID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(raw)
}
