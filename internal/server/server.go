// Package server exposes the subscription lifecycle over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/intellispire/commercestore/internal/config"
	"github.com/intellispire/commercestore/internal/event"
	"github.com/intellispire/commercestore/internal/gateway"
	"github.com/intellispire/commercestore/internal/gateway/webhook"
	"github.com/intellispire/commercestore/internal/locking"
	"github.com/intellispire/commercestore/internal/observability"
	obslogger "github.com/intellispire/commercestore/internal/observability/logger"
	obstracing "github.com/intellispire/commercestore/internal/observability/tracing"
	"github.com/intellispire/commercestore/internal/order"
	"github.com/intellispire/commercestore/internal/payment"
	"github.com/intellispire/commercestore/internal/ratelimit"
	"github.com/intellispire/commercestore/internal/scheduler"
	"github.com/intellispire/commercestore/internal/subscription"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	event.Module,
	locking.Module,
	order.Module,
	payment.Module,
	gateway.Module,
	webhook.Module,
	ratelimit.Module,
	subscription.Module,
	fx.Provide(scheduler.ProvideConfig),
	fx.Provide(scheduler.New),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware(obsCfg.ServiceName))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine          *gin.Engine
	cfg             config.Config
	genID           *snowflake.Node
	subscriptionSvc subscriptiondomain.Service
	webhookSvc      *webhook.Service
	webhookLimiter  *ratelimit.WebhookLimiter
	scheduler       *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	SubscriptionSvc subscriptiondomain.Service
	WebhookSvc      *webhook.Service
	WebhookLimiter  *ratelimit.WebhookLimiter `optional:"true"`
	Scheduler       *scheduler.Scheduler      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		subscriptionSvc: p.SubscriptionSvc,
		webhookSvc:      p.WebhookSvc,
		webhookLimiter:  p.WebhookLimiter,
		scheduler:       p.Scheduler,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	subs := v1.Group("/subscriptions")
	{
		subs.POST("", s.CreateSubscription)
		subs.GET("", s.ListSubscriptions)
		subs.GET("/:id", s.GetSubscriptionByID)
		subs.DELETE("/:id", s.DeleteSubscription)

		subs.POST("/:id/renew", s.RenewSubscription)
		subs.POST("/:id/cancel", s.CancelSubscription)
		subs.POST("/:id/complete", s.CompleteSubscription)
		subs.POST("/:id/expire", s.ExpireSubscription)
		subs.POST("/:id/fail", s.FailSubscription)
		subs.POST("/:id/retry", s.RetrySubscription)

		subs.GET("/:id/notes", s.ListSubscriptionNotes)
		subs.POST("/:id/notes", s.AddSubscriptionNote)
	}

	v1.POST("/webhooks/:gateway", s.HandleGatewayWebhook)
	v1.POST("/sweep/run", s.RunSweep)
}
