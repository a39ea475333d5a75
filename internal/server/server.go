// Package server wires the HTTP entry points: provider webhooks, internal
// job triggers and the SDR work queue.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingadapter "github.com/smallbiznis/reachway/internal/billing/adapter"
	billingdomain "github.com/smallbiznis/reachway/internal/billing/domain"
	"github.com/smallbiznis/reachway/internal/cadence/progression"
	"github.com/smallbiznis/reachway/internal/config"
	"github.com/smallbiznis/reachway/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/reachway/internal/quota/domain"
	"github.com/smallbiznis/reachway/internal/ratelimit"
	reconcilemessaging "github.com/smallbiznis/reachway/internal/reconcile/messaging"
	reconciletelephony "github.com/smallbiznis/reachway/internal/reconcile/telephony"
	webhookdomain "github.com/smallbiznis/reachway/internal/webhookevent/domain"
	"github.com/smallbiznis/reachway/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
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
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	genID          *snowflake.Node
	ledger         webhookdomain.Service
	billingSvc     billingdomain.Service
	billingAdapter *billingadapter.Adapter
	quotaSvc       quotadomain.Service
	messagingSvc   *reconcilemessaging.Service
	telephonySvc   *reconciletelephony.Service
	progressionSvc *progression.Service
	replyPoller    *worker.ReplyPoller
	enrichment     *worker.EnrichmentBatcher
	limiter        *ratelimit.IngestLimiter
	metrics        *metrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	GenID          *snowflake.Node
	Ledger         webhookdomain.Service
	BillingSvc     billingdomain.Service
	BillingAdapter *billingadapter.Adapter
	QuotaSvc       quotadomain.Service
	MessagingSvc   *reconcilemessaging.Service
	TelephonySvc   *reconciletelephony.Service
	ProgressionSvc *progression.Service
	ReplyPoller    *worker.ReplyPoller
	Enrichment     *worker.EnrichmentBatcher
	Limiter        *ratelimit.IngestLimiter `optional:"true"`
	Metrics        *metrics.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("server"),
		genID:          p.GenID,
		ledger:         p.Ledger,
		billingSvc:     p.BillingSvc,
		billingAdapter: p.BillingAdapter,
		quotaSvc:       p.QuotaSvc,
		messagingSvc:   p.MessagingSvc,
		telephonySvc:   p.TelephonySvc,
		progressionSvc: p.ProgressionSvc,
		replyPoller:    p.ReplyPoller,
		enrichment:     p.Enrichment,
		limiter:        p.Limiter,
		metrics:        p.Metrics,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	webhooks := s.engine.Group("/webhooks")
	{
		webhooks.GET("/messaging", s.VerifyMessagingWebhook)
		webhooks.POST("/messaging", s.HandleMessagingWebhook)
		webhooks.POST("/telephony", s.HandleTelephonyWebhook)
		webhooks.POST("/payments/:provider", s.HandlePaymentWebhook)
	}

	internal := s.engine.Group("/internal", s.WorkerAuth())
	{
		internal.POST("/jobs/"+worker.JobReplyPoll, s.HandleReplyPollJob)
		internal.POST("/jobs/"+worker.JobLeadEnrichment, s.HandleEnrichmentJob)
		internal.POST("/credits/deduct", s.HandleCreditDeduct)
		internal.GET("/orgs/:org_id/activities/pending", s.HandlePendingActivities)
	}
}
