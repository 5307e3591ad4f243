package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/loyalty/internal/authorization"
	claimdomain "github.com/smallbiznis/loyalty/internal/claim/domain"
	"github.com/smallbiznis/loyalty/internal/config"
	loyaltydomain "github.com/smallbiznis/loyalty/internal/loyalty/domain"
	"github.com/smallbiznis/loyalty/internal/observability"
	obsmiddleware "github.com/smallbiznis/loyalty/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/loyalty/internal/observability/metrics"
	obstracing "github.com/smallbiznis/loyalty/internal/observability/tracing"
	"github.com/smallbiznis/loyalty/internal/providers/pdf"
	"github.com/smallbiznis/loyalty/internal/ratelimit"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine     *gin.Engine
	cfg        config.Config
	loyaltyCfg *config.LoyaltyConfigHolder
	loyalty    loyaltydomain.Service
	rewards    rewarddomain.Service
	claims     claimdomain.Service
	authzSvc   authorization.Service
	limiter    *ratelimit.ClaimLimiter
	vouchers   pdf.Provider
	tokens     *tokenVerifier
	keys       apiKeyring
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	LoyaltyCfg *config.LoyaltyConfigHolder
	Loyalty    loyaltydomain.Service
	Rewards    rewarddomain.Service
	Claims     claimdomain.Service
	AuthzSvc   authorization.Service
	Limiter    *ratelimit.ClaimLimiter `optional:"true"`
	Vouchers   pdf.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		loyaltyCfg: p.LoyaltyCfg,
		loyalty:    p.Loyalty,
		rewards:    p.Rewards,
		claims:     p.Claims,
		authzSvc:   p.AuthzSvc,
		limiter:    p.Limiter,
		vouchers:   p.Vouchers,
		tokens:     newTokenVerifier(p.Cfg.AuthJWTSecret, p.Cfg.AuthJWTIssuer),
		keys:       newAPIKeyring(p.Cfg.APIKeys),
	}

	svc.registerLoyaltyRoutes()
	svc.registerHookRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerLoyaltyRoutes() {
	api := s.engine.Group("/v1/loyalty", s.UserAuthRequired())

	api.GET("/balance", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceView), s.GetBalance)
	api.GET("/history", s.authorize(authorization.ObjectHistory, authorization.ActionHistoryView), s.ListHistory)
	api.GET("/daily-claims", s.authorize(authorization.ObjectClaim, authorization.ActionClaimView), s.GetDailyClaims)
	api.GET("/rewards", s.authorize(authorization.ObjectReward, authorization.ActionRewardView), s.ListAvailableRewards)
	api.POST("/rewards/:id/claim",
		s.authorize(authorization.ObjectClaim, authorization.ActionClaimCreate),
		s.ClaimRateLimit(),
		s.ClaimReward,
	)
	api.GET("/claims", s.authorize(authorization.ObjectClaim, authorization.ActionClaimView), s.ListClaims)
	api.GET("/claims/:code/voucher", s.authorize(authorization.ObjectClaim, authorization.ActionClaimView), s.DownloadVoucher)
}

func (s *Server) registerHookRoutes() {
	hooks := s.engine.Group("/v1/hooks", s.APIKeyRequired())

	hooks.POST("/orders/completed", s.authorize(authorization.ObjectHooks, authorization.ActionOrderComplete), s.OrderCompleted)
	hooks.POST("/users/authenticated", s.authorize(authorization.ObjectHooks, authorization.ActionUserAuthenticated), s.UserAuthenticated)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.APIKeyRequired())

	admin.GET("/rewards", s.authorize(authorization.ObjectReward, authorization.ActionRewardManage), s.AdminListRewards)
	admin.POST("/rewards", s.authorize(authorization.ObjectReward, authorization.ActionRewardManage), s.AdminCreateReward)
	admin.PATCH("/rewards/:id", s.authorize(authorization.ObjectReward, authorization.ActionRewardManage), s.AdminUpdateReward)
	admin.POST("/rewards/:id/expire", s.authorize(authorization.ObjectReward, authorization.ActionRewardManage), s.AdminExpireReward)

	admin.GET("/claims/:code", s.authorize(authorization.ObjectClaim, authorization.ActionClaimRedeem), s.AdminGetClaim)
	admin.POST("/claims/:code/redeem", s.authorize(authorization.ObjectClaim, authorization.ActionClaimRedeem), s.AdminRedeemClaim)

	users := admin.Group("/users/:userId")
	users.POST("/adjustments", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceAdjust), s.AdminAdjust)
	users.GET("/history", s.authorize(authorization.ObjectHistory, authorization.ActionHistoryView), s.AdminListHistory)
	users.GET("/balance/verify", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceVerify), s.AdminVerifyBalance)
	users.POST("/balance/reconcile", s.authorize(authorization.ObjectBalance, authorization.ActionBalanceReconcile), s.AdminReconcile)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
